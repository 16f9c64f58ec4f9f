package selector

// conditionKeywords maps each instrument to the symptom vocabulary that
// hints at it during conversation. Keyword matching runs alongside the
// model-backed analysis and also serves as its fallback.
var conditionKeywords = map[string][]string{
	"Depression": {
		"depressed", "sad", "hopeless", "worthless", "suicidal",
		"loss of interest", "fatigue", "sleep problems", "appetite", "concentration",
	},
	"Anxiety": {
		"anxious", "worried", "nervous", "panic", "fear",
		"restless", "trouble sleeping", "irritable",
	},
	"Post-traumatic stress disorder (PTSD)": {
		"trauma", "flashback", "nightmare", "avoidance",
		"hypervigilance", "traumatic event", "ptsd",
	},
	"Obsessive compulsive disorder (OCD)": {
		"obsession", "compulsion", "repetitive", "ritual",
		"intrusive thoughts", "ocd",
	},
	"Bipolar disorder (BD)": {
		"manic", "mania", "bipolar", "mood swings",
		"euphoric", "depressed then high",
	},
	"Panic": {
		"panic attack", "heart racing", "chest pain",
		"shortness of breath", "dizziness", "fear of dying",
	},
	"Insomnia": {
		"trouble sleeping", "insomnia", "can't sleep",
		"wake up", "sleep problems", "restless sleep",
	},
	"Stress": {
		"stressed", "overwhelmed", "pressure",
		"burnout", "exhausted", "work stress",
	},
	"ADD / ADHD": {
		"adhd", "attention", "hyperactive", "focus",
		"distracted", "impulsive", "can't concentrate",
	},
	"Substance or Alcohol Use Issues": {
		"alcohol", "drug", "substance", "addiction",
		"drinking", "using", "abuse",
	},
	"Drug Abuse": {
		"drug use", "substance abuse", "addiction",
		"using drugs", "overdose",
	},
	"Binge eating / Eating disorders": {
		"binge", "eating disorder", "overeating",
		"purge", "body image", "anorexia", "bulimia",
	},
	"Social anxiety": {
		"social anxiety", "afraid of people", "social situations",
		"public speaking", "judgment",
	},
	"Phobia": {
		"phobia", "fear of", "afraid of", "avoid", "specific fear",
	},
	"Burnout": {
		"burnout", "exhausted", "work stress",
		"overwhelmed at work", "emotional exhaustion",
	},
}

var criticalKeywords = []string{
	"suicidal", "kill myself", "end my life", "want to die",
	"harm myself", "self harm", "overdose",
}

var highUrgencyKeywords = []string{
	"emergency", "urgent", "crisis", "can't cope",
	"breaking down", "severe", "extreme",
}
