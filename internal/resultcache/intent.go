// internal/resultcache/intent.go
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"recommendation-backend/internal/common/logger"
)

// Intent keys for the non-category buckets.
const (
	IntentInformationRequest    = "information_request"
	IntentProductSearch         = "product_search"
	IntentRecommendationRequest = "recommendation_request"
	followUpPrefix              = "follow_up_"
	categoryPrefix              = "category_"
)

// KeywordProvider supplies the category -> keyword map derived from the live
// catalog. Implemented by the product catalog cache; injected explicitly so
// category derivation always sees real catalog data once it is available.
type KeywordProvider interface {
	CategoryKeywords(ctx context.Context) (map[string][]string, error)
}

// staticCategoryKeywords is the last-resort table used only while the
// catalog is unreachable. Observably different from the dynamic map: it
// covers a handful of generic retail categories, nothing merchant-specific.
var staticCategoryKeywords = map[string][]string{
	"shoes":       {"shoe", "shoes", "sneaker", "sneakers", "boot", "boots"},
	"clothing":    {"shirt", "dress", "jacket", "pants", "clothing", "wear"},
	"electronics": {"phone", "laptop", "headphones", "camera", "electronics"},
	"bags":        {"bag", "bags", "backpack", "purse", "tote"},
	"accessories": {"watch", "belt", "scarf", "hat", "sunglasses"},
}

var queryStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "i": {}, "me": {}, "my": {}, "to": {},
	"of": {}, "for": {}, "in": {}, "on": {}, "is": {}, "it": {}, "do": {},
	"you": {}, "your": {}, "some": {}, "any": {}, "please": {}, "want": {},
	"would": {}, "like": {}, "need": {}, "looking": {},
}

var followUpTriggers = map[string]struct{}{
	"more": {}, "different": {}, "other": {}, "another": {}, "else": {},
	"instead": {}, "alternatives": {},
}

var infoTriggers = map[string]struct{}{
	"help": {}, "how": {}, "what": {}, "why": {}, "where": {}, "when": {},
	"info": {}, "information": {}, "explain": {},
}

var searchVerbs = map[string]struct{}{
	"search": {}, "find": {}, "show": {}, "browse": {}, "list": {},
}

var recommendVerbs = map[string]struct{}{
	"recommend": {}, "suggest": {}, "recommendations": {}, "suggestions": {},
}

// IntentExtractor turns conversational query text into a stable semantic
// intent key.
type IntentExtractor struct {
	keywords KeywordProvider
	logger   logger.Logger
}

func NewIntentExtractor(keywords KeywordProvider, log logger.Logger) *IntentExtractor {
	return &IntentExtractor{keywords: keywords, logger: log}
}

// Intent derives the semantic intent key for a query. Priority order:
// follow-up signals, informational phrasing, category keyword match
// (catalog-derived map first, static table only when the catalog is
// unreachable), generic intent verbs, then the first significant tokens.
// The ordering guarantees a follow-up query never collides with the
// original query's cache bucket.
func (e *IntentExtractor) Intent(ctx context.Context, query string) string {
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return IntentRecommendationRequest
	}

	categories := e.categoryKeywords(ctx)

	// (a) explicit follow-up signals
	if hasAny(tokens, followUpTriggers) {
		if cat := matchCategory(tokens, categories); cat != "" {
			return followUpPrefix + cat
		}
		if hasToken(tokens, "cheaper") || hasToken(tokens, "price") || hasToken(tokens, "cost") || hasToken(tokens, "expensive") {
			return followUpPrefix + "price"
		}
		if hasToken(tokens, "brand") || hasToken(tokens, "brands") {
			return followUpPrefix + "brand"
		}
		return followUpPrefix + "general"
	}

	// (b) help / informational phrasing
	if hasAny(tokens, infoTriggers) {
		return IntentInformationRequest
	}

	// (c) category keyword match
	if cat := matchCategory(tokens, categories); cat != "" {
		return categoryPrefix + cat
	}

	// (d) generic intent verbs
	if hasAny(tokens, recommendVerbs) {
		return IntentRecommendationRequest
	}
	if hasAny(tokens, searchVerbs) {
		return IntentProductSearch
	}

	// (e) first significant query tokens
	significant := make([]string, 0, 3)
	for _, tok := range tokens {
		if _, stop := queryStopwords[tok]; stop {
			continue
		}
		significant = append(significant, tok)
		if len(significant) == 3 {
			break
		}
	}
	if len(significant) == 0 {
		return IntentRecommendationRequest
	}
	return strings.Join(significant, "_")
}

// categoryKeywords prefers the injected catalog-derived map and falls back
// to the static table only when the catalog cannot provide one.
func (e *IntentExtractor) categoryKeywords(ctx context.Context) map[string][]string {
	if e.keywords != nil {
		if kw, err := e.keywords.CategoryKeywords(ctx); err == nil && len(kw) > 0 {
			return kw
		}
	}
	return staticCategoryKeywords
}

// KnownCategory reports whether name is a category in the active keyword
// map, used to resolve follow-up qualifiers back to category buckets.
func (e *IntentExtractor) KnownCategory(ctx context.Context, name string) bool {
	_, ok := e.categoryKeywords(ctx)[name]
	return ok
}

func tokenize(query string) []string {
	return strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
}

func hasAny(tokens []string, set map[string]struct{}) bool {
	for _, tok := range tokens {
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}

func hasToken(tokens []string, want string) bool {
	for _, tok := range tokens {
		if tok == want {
			return true
		}
	}
	return false
}

func matchCategory(tokens []string, categories map[string][]string) string {
	// Deterministic match order regardless of map iteration.
	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, kw := range categories[name] {
			if hasToken(tokens, kw) {
				return name
			}
		}
	}
	return ""
}

// FollowUpQualifier returns the qualifier of a follow-up intent ("shoes",
// "price", "general", ...) and whether the intent is a follow-up at all.
func FollowUpQualifier(intent string) (string, bool) {
	if strings.HasPrefix(intent, followUpPrefix) {
		return strings.TrimPrefix(intent, followUpPrefix), true
	}
	return "", false
}

// IntentCategory returns the category of a category-derived intent.
func IntentCategory(intent string) (string, bool) {
	if strings.HasPrefix(intent, categoryPrefix) {
		return strings.TrimPrefix(intent, categoryPrefix), true
	}
	return "", false
}

// CategoryIntent builds the category bucket intent for a category name.
func CategoryIntent(category string) string {
	return categoryPrefix + category
}

// Fingerprint derives a stable digest of an exclusion set. Different
// exclusion sets always produce different fingerprints.
func Fingerprint(exclusions map[string]struct{}) string {
	if len(exclusions) == 0 {
		return "none"
	}
	ids := make([]string, 0, len(exclusions))
	for id := range exclusions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:8])
}
