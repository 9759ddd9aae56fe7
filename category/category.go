// Package category classifies product keywords into the four site
// categories. It also validates category claims coming back from the
// summarizer, which occasionally invents values outside the enum.
package category

import (
	"strings"

	"honest-report-service/keyword"
)

// The four allowed categories. Everything unmatched falls back to Services.
const (
	Electronics = "Électronique"
	Cosmetics   = "Cosmétiques"
	Food        = "Alimentation"
	Services    = "Services"
)

// All lists the allowed categories in display order.
var All = []string{Electronics, Cosmetics, Food, Services}

// Word lists are matched against the keyword.Normalize form of the keyword,
// so every entry is itself normalized at init: accents stripped, hyphens
// folded to spaces, apostrophes dropped.
var categoryWords = map[string][]string{
	Electronics: {
		"telephone", "smartphone", "iphone", "samsung", "xiaomi", "pixel",
		"ordinateur", "pc", "laptop", "macbook", "tablette", "ipad",
		"ecran", "moniteur", "clavier", "souris", "casque", "ecouteurs",
		"enceinte", "barre de son", "tv", "television", "console",
		"playstation", "xbox", "nintendo", "switch", "gaming", "gamer",
		"camera", "appareil photo", "drone", "gps", "montre connectee",
		"smartwatch", "aspirateur", "robot", "imprimante", "routeur",
		"chargeur", "batterie", "disque dur", "ssd", "processeur",
		"carte graphique", "videoprojecteur", "liseuse", "kindle",
	},
	Cosmetics: {
		"creme", "serum", "shampoing", "shampooing", "apres-shampoing",
		"gel douche", "savon", "deodorant", "parfum", "eau de toilette",
		"maquillage", "mascara", "rouge a levres", "fond de teint",
		"vernis", "soin", "hydratant", "anti-age", "anti-rides",
		"masque visage", "gommage", "huile essentielle", "baume",
		"dentifrice", "brosse a dents", "rasoir", "mousse a raser",
		"epilateur", "seche-cheveux", "lisseur", "tondeuse",
		"protection solaire", "autobronzant",
	},
	Food: {
		"cafe", "tisane", "chocolat", "biscuit", "cereales",
		"miel", "confiture", "huile d'olive", "pates", "farine",
		"sucre", "epice", "sauce", "soupe", "bouillon",
		"proteine", "whey", "complement alimentaire", "vitamine",
		"yaourt", "fromage", "boisson", "sirop",
		"biere", "grains", "dosette", "infusion", "snack",
		"barre energetique", "croquettes",
	},
	// Services is the default; no word list needed.
}

func init() {
	for _, words := range categoryWords {
		for i, w := range words {
			words[i] = keyword.Normalize(w)
		}
	}
}

// Detect classifies a free-text keyword by substring matching against the
// per-category word lists. Unmatched input is Services, the documented
// default.
func Detect(kw string) string {
	normalized := " " + keyword.Normalize(kw) + " "
	if strings.TrimSpace(normalized) == "" {
		return Services
	}

	for _, cat := range []string{Electronics, Cosmetics, Food} {
		for _, w := range categoryWords[cat] {
			if strings.Contains(normalized, w) {
				return cat
			}
		}
	}
	return Services
}

// Valid reports whether c is one of the four allowed categories.
func Valid(c string) bool {
	for _, cat := range All {
		if c == cat {
			return true
		}
	}
	return false
}

// Sanitize returns claimed when it is a member of the enum, and otherwise
// re-classifies from the keyword. Used to validate category values coming
// back from the LLM.
func Sanitize(claimed, kw string) string {
	if Valid(claimed) {
		return claimed
	}
	return Detect(kw)
}
