package answer

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are a helpful assistant for city services. Provide accurate, helpful information based on official sources."

// BuildPrompt embeds the retrieved passages as numbered sources and
// instructs the model to answer from them alone.
func BuildPrompt(query string, passages []string) string {
	labeled := make([]string, len(passages))
	for i, p := range passages {
		labeled[i] = fmt.Sprintf("Source %d: %s", i+1, p)
	}

	return fmt.Sprintf(`Based on the following official city information, please answer the user's question accurately and helpfully.

CONTEXT FROM OFFICIAL CITY PAGES:
%s

USER QUESTION: %s

INSTRUCTIONS:
1. Provide a clear, accurate answer based on the context above
2. If the context contains specific procedures, list them step by step
3. Include relevant fees, locations, or contact information when available
4. If the context doesn't fully answer the question, say so clearly
5. Always prioritize official city information over general knowledge
6. Be helpful and conversational while remaining factual
7. If mentioning fees or procedures, note that information should be verified on the city website as it may change

RESPONSE:`, strings.Join(labeled, "\n\n"), query)
}

var fallbackAnswers = []struct {
	keyword string
	text    string
}{
	{"marriage", "For marriage license information, please visit the city website or call 311."},
	{"parking", "For parking information and regulations, please visit the city website or call 311."},
	{"garbage", "For waste collection information, please visit the city website or call 311."},
	{"waste", "For waste collection information, please visit the city website or call 311."},
	{"fire", "For fire safety information, please visit the city website or contact the fire service."},
	{"business", "For business licensing information, please visit the city website or call 311."},
}

// FallbackAnswer returns a scripted answer for when generation is
// unavailable, selected by keyword match on the query.
func FallbackAnswer(query string) string {
	q := strings.ToLower(query)
	for _, f := range fallbackAnswers {
		if strings.Contains(q, f.keyword) {
			return "I apologize, but I'm experiencing technical difficulties. " + f.text
		}
	}
	return "I apologize, but I'm unable to process your request at the moment. Please visit the city website or call 311 for assistance with city services."
}

// NoContextAnswer is returned when retrieval found nothing above the
// similarity threshold.
func NoContextAnswer() string {
	return "I couldn't find relevant information about that topic in my city services database."
}
