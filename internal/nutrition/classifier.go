package nutrition

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	MinDescriptionLength = 3
	MaxDescriptionLength = 1000
)

// foodLexicon holds food, dish, ingredient, meal and serving words in English
// and Spanish. A token matches when it equals an entry, equals it after
// dropping a plural suffix, or contains an entry of four or more letters.
// A lexicon hit overrides the gibberish check, so consonant-heavy dish
// names like "borscht" still pass.
var foodLexicon = toSet(
	// meals and servings
	"breakfast", "lunch", "dinner", "supper", "snack", "brunch", "meal", "dish",
	"plate", "bowl", "cup", "glass", "slice", "piece", "serving", "portion",
	"spoon", "tablespoon", "teaspoon", "handful", "gram", "grams", "oz", "ml",
	"desayuno", "almuerzo", "comida", "cena", "merienda", "plato", "taza",
	"vaso", "rebanada", "porcion",
	// proteins
	"chicken", "beef", "pork", "steak", "fish", "salmon", "tuna", "shrimp",
	"egg", "turkey", "ham", "bacon", "sausage", "tofu", "beans", "bean",
	"lentil", "meat", "lamb", "burger", "meatball", "pollo", "carne", "cerdo",
	"pescado", "huevo", "atun", "jamon", "frijoles", "lentejas",
	// carbs and dishes
	"rice", "bread", "pasta", "noodle", "potato", "fries", "toast", "bagel",
	"oat", "oatmeal", "cereal", "pancake", "waffle", "tortilla", "taco",
	"burrito", "pizza", "sandwich", "wrap", "sushi", "ramen", "soup", "stew",
	"curry", "salad", "quinoa", "couscous", "croissant", "muffin", "cake",
	"cookie", "pie", "dumpling", "arroz", "pan", "papa", "patata", "sopa",
	"ensalada", "empanada", "arepa", "galleta",
	// vegetables and fruit
	"vegetable", "veggie", "broccoli", "carrot", "spinach", "lettuce", "tomato",
	"onion", "pepper", "corn", "pea", "mushroom", "avocado", "cucumber",
	"apple", "banana", "orange", "berry", "berries", "grape", "mango",
	"pineapple", "strawberry", "melon", "fruit", "verdura", "tomate",
	"manzana", "platano", "fruta", "naranja", "fresa",
	// dairy, fats, drinks, sweets
	"milk", "cheese", "yogurt", "butter", "cream", "oil", "nut", "nuts",
	"almond", "peanut", "chocolate", "coffee", "tea", "juice", "smoothie",
	"shake", "soda", "beer", "wine", "ice", "honey", "jam", "leche", "queso",
	"yogur", "mantequilla", "cafe", "jugo", "zumo", "postre", "dessert",
	"café", "jamón", "atún", "plátano", "porción",
	// consonant-heavy dishes
	"borscht", "schnitzel", "strudel", "knishes",
)

// IsLikelyMeal decides whether description plausibly describes food before
// an inference call is paid for. Only empty, too short, too long or
// gibberish-only input is rejected; any real-looking word passes and the
// inference service judges the rest.
func IsLikelyMeal(description string) (bool, string) {
	text := strings.TrimSpace(description)
	if text == "" {
		return false, "Description is empty"
	}
	n := utf8.RuneCountInString(text)
	if n < MinDescriptionLength {
		return false, "Description is too short"
	}
	if n > MaxDescriptionLength {
		return false, "Description is too long"
	}

	words := tokenize(text)
	if len(words) == 0 {
		return false, "Description contains no words"
	}

	for _, w := range words {
		if isFoodWord(w) || !looksLikeGibberish(w) {
			return true, ""
		}
	}
	return false, "Description looks like random characters"
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}

func isFoodWord(w string) bool {
	if _, ok := foodLexicon[w]; ok {
		return true
	}
	for _, suffix := range []string{"es", "s"} {
		if stem, ok := strings.CutSuffix(w, suffix); ok && len(stem) >= 2 {
			if _, ok := foodLexicon[stem]; ok {
				return true
			}
		}
	}
	if len(w) < 5 {
		return false
	}
	for entry := range foodLexicon {
		if len(entry) >= 4 && strings.Contains(w, entry) {
			return true
		}
	}
	return false
}

// looksLikeGibberish flags ASCII words with no vowels, long consonant runs or
// long repeats. Non-ASCII words are never flagged.
func looksLikeGibberish(w string) bool {
	if len(w) < 2 {
		return false
	}
	vowels, run, maxRun, repeat, maxRepeat := 0, 0, 0, 1, 1
	var prev rune
	for i, r := range w {
		if r > unicode.MaxASCII {
			return false
		}
		if strings.ContainsRune("aeiouy", r) {
			vowels++
			run = 0
		} else {
			run++
			maxRun = max(maxRun, run)
		}
		if i > 0 && r == prev {
			repeat++
			maxRepeat = max(maxRepeat, repeat)
		} else {
			repeat = 1
		}
		prev = r
	}
	switch {
	case vowels == 0 && len(w) >= 4:
		return true
	case maxRun >= 5:
		return true
	case maxRepeat >= 4:
		return true
	}
	return false
}

func toSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
