package capture

import "merchant-voice-auth/internal/language"

// Word tables hold folded forms (lowercase, no combining accents).
var numeralTables = map[string]map[string]int{
	language.French: {
		"zero": 0, "un": 1, "une": 1, "deux": 2, "trois": 3, "quatre": 4, "cinq": 5,
		"six": 6, "sept": 7, "huit": 8, "neuf": 9, "dix": 10, "onze": 11, "douze": 12,
		"treize": 13, "quatorze": 14, "quinze": 15, "seize": 16, "vingt": 20, "vingts": 20,
		"trente": 30, "quarante": 40, "cinquante": 50, "soixante": 60,
	},
	language.English: {
		"zero": 0, "oh": 0, "o": 0, "nil": 0, "one": 1, "two": 2, "three": 3, "four": 4,
		"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10, "eleven": 11,
		"twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15, "sixteen": 16,
		"seventeen": 17, "eighteen": 18, "nineteen": 19, "twenty": 20, "thirty": 30,
		"forty": 40, "fifty": 50, "sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	},
	language.Dioula: {
		"sifiri": 0, "kelen": 1, "fila": 2, "saba": 3, "naani": 4, "duuru": 5,
		"wɔɔrɔ": 6, "wolonwula": 7, "segin": 8, "kɔnɔntɔn": 9, "tan": 10,
		"mugan": 20, "bisaba": 30, "binaani": 40, "biduuru": 50, "biwɔɔrɔ": 60,
		"biwolonwula": 70, "bisegin": 80, "bikɔnɔntɔn": 90,
	},
	language.Baoule: {
		"kun": 1, "nnɔn": 2, "nsan": 3, "nnan": 4, "nnun": 5, "nsiɛn": 6,
		"nso": 7, "mɔcuɛn": 8, "ngwlan": 9, "blu": 10,
	},
}

// Regional spellings consulted after the declared language table.
var variantTables = map[string]map[string]int{
	// Belgian and Swiss tens, and the Ivorian "zéro" shortened to "zo".
	language.French: {
		"septante": 70, "huitante": 80, "octante": 80, "nonante": 90, "zo": 0,
	},
	// Bambara spellings of the Manding numerals.
	language.Dioula: {
		"fu": 0, "woro": 6, "wooro": 6, "wolonfila": 7, "seegin": 8, "kononton": 9,
		"konondo": 9, "muwan": 20,
	},
}

// Multi-word numerals rewritten to one value before word lookup. Keys are space-joined folded tokens.
var phraseTables = map[string]map[string]int{
	language.French: {
		"quatre vingt dix":  90,
		"quatre vingts dix": 90,
		"quatre vingt":      80,
		"quatre vingts":     80,
		"soixante dix":      70,
		"soixante et onze":  71,
		"dix sept":          17,
		"dix huit":          18,
		"dix neuf":          19,
	},
}

const maxPhraseWords = 3

// connectors join a tens word to the unit that follows ("vingt et un", "mugan ni kelen").
var connectors = map[string]bool{"et": true, "and": true, "ni": true}

// lookupNumeral maps a folded word through the declared language, its regional variants,
// then English.
func lookupNumeral(word, lang string) (int, bool) {
	if v, ok := numeralTables[lang][word]; ok {
		return v, true
	}
	if v, ok := variantTables[lang][word]; ok {
		return v, true
	}
	v, ok := numeralTables[language.English][word]
	return v, ok
}
