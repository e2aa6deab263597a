package conditions

// Supported presentation languages.
const (
	LangRU = "ru"
	LangEN = "en"
)

var verdictLabels = map[string]map[Verdict]string{
	LangRU: {Good: "благоприятные", Bad: "неблагоприятные"},
	LangEN: {Good: "good", Bad: "bad"},
}

// Label renders a verdict for display. Unknown languages fall back to English.
func Label(v Verdict, lang string) string {
	labels, ok := verdictLabels[lang]
	if !ok {
		labels = verdictLabels[LangEN]
	}
	if s, ok := labels[v]; ok {
		return s
	}
	return string(v)
}

var phrasesRU = map[string]string{
	"Sunny":                    "Солнечно",
	"Mostly sunny":             "Преимущественно солнечно",
	"Partly sunny":             "Облачно с прояснениями",
	"Partly sunny w/ showers":  "Облачно с прояснениями, дожди",
	"Mostly cloudy w/ showers": "Преимущественно облачно, дожди",
	"Intermittent clouds":      "Переменная облачность",
	"Partly cloudy":            "Переменная облачность",
	"Mostly cloudy":            "Преимущественно облачно",
	"Cloudy":                   "Облачно",
	"Dreary":                   "Пасмурно",
	"Fog":                      "Туман",
	"Showers":                  "Ливни",
	"Rain":                     "Дождь",
	"Light rain":               "Лёгкий дождь",
	"Thunderstorms":            "Грозы",
	"Snow":                     "Снег",
	"Flurries":                 "Небольшой снег",
	"Ice":                      "Гололёд",
	"Sleet":                    "Мокрый снег",
	"Freezing rain":            "Ледяной дождь",
	"Rain and snow":            "Дождь со снегом",
	"Windy":                    "Ветрено",
	"Clear":                    "Ясно",
	"Mostly clear":             "Преимущественно ясно",
	"Light":                    "Лёгкие",
	"Moderate":                 "Умеренные",
	"Heavy":                    "Сильные",
	"None":                     "Нет",
}

// TranslatePhrase maps a provider phrase to Russian, returning the input when unknown.
func TranslatePhrase(phrase string) string {
	if phrase == "" {
		return phrasesRU["None"]
	}
	if s, ok := phrasesRU[phrase]; ok {
		return s
	}
	return phrase
}
