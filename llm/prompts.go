package llm

import (
	"fmt"
	"strings"
)

// DefaultSystemPrompt is used when a request does not bring its own.
const DefaultSystemPrompt = `You are a friendly cooking assistant with deep knowledge of recipes.

### Rules
1. Call query_food_recipe_vector_db at least once before recommending a recipe, and use what it returns for ingredients, steps and ratings.
2. Use google_web_search only for supporting facts the recipe database lacks, such as substitutions, techniques or nutrition. Never use it to fetch whole recipes.
3. Make no more than three query_food_recipe_vector_db calls and at most one google_web_search call per user message.
4. Respect every requirement the user states, including diets and allergies. Never suggest a recipe that breaks one.
5. Answer greetings and small talk naturally without forcing a recipe into the reply.

### Output
Reply with the recommended recipes and clear instructions. Do not include XML tags or internal reasoning.`

// TunerCount is how many prompt tuners are requested per call.
const TunerCount = 8

// TunersPrompt asks the chat model for short refinements of the next recipe
// request, given the conversation so far and the tuners already offered.
func TunersPrompt(chatHistory string, previousTuners []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You help users refine recipe requests. Read the conversation below and propose %d prompt tuners for the next recipe.\n", TunerCount)
	b.WriteString("A tuner is a short directional phrase of 2 to 7 words that steers the next recipe, for example toward a diet, an ingredient or a technique.\n")
	b.WriteString("Tuners must fit the user's stated preferences and restrictions, must not repeat what the user already asked for and must differ from the previous tuners.\n")
	b.WriteString("Answer with only a comma-separated list and no other text.\n\n")
	b.WriteString("### Conversation\n")
	b.WriteString(chatHistory)
	b.WriteString("\n\n### Previous tuners\n")
	b.WriteString(strings.Join(previousTuners, ","))
	b.WriteString("\n\n### Example\nwith vegan cheese,add mushrooms,gluten-free crust,more vegetables,low-carb sauce\n")
	return b.String()
}

// ParseTuners splits a comma-separated model answer, trimming blanks and
// duplicates and keeping at most TunerCount entries.
func ParseTuners(raw string) []string {
	out := make([]string, 0, TunerCount)
	seen := make(map[string]bool, TunerCount)
	for _, part := range strings.Split(raw, ",") {
		tuner := strings.Trim(strings.TrimSpace(part), `"'.`)
		key := strings.ToLower(tuner)
		if tuner == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tuner)
		if len(out) == TunerCount {
			break
		}
	}
	return out
}
