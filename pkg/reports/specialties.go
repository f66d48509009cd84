package reports

// specialtyProfile drives a specialist report's prompt: what the
// specialist cares about and which clinical scales to estimate.
type specialtyProfile struct {
	Name   string
	Focus  string
	Scales []string
}

var specialtyProfiles = map[string]specialtyProfile{
	"cardiology": {
		Name:   "cardiology",
		Focus:  "cardiovascular symptoms, exertional patterns, palpitations, syncope, blood pressure history, and cardiac risk factors",
		Scales: []string{"CHA2DS2-VASc", "NYHA functional class"},
	},
	"neurology": {
		Name:   "neurology",
		Focus:  "headache patterns, focal deficits, seizure-like episodes, sensory changes, and cognitive complaints",
		Scales: []string{"MIDAS", "HIT-6"},
	},
	"psychiatry": {
		Name:   "psychiatry",
		Focus:  "mood, anxiety, sleep, concentration, psychosocial stressors, and safety concerns",
		Scales: []string{"PHQ-9", "GAD-7"},
	},
	"dermatology": {
		Name:   "dermatology",
		Focus:  "lesion morphology, distribution, evolution over time, photo-documented changes, and ABCDE features",
		Scales: []string{"ABCDE criteria", "PASI"},
	},
	"gastroenterology": {
		Name:   "gastroenterology",
		Focus:  "abdominal pain patterns, bowel habit changes, relation to meals, weight change, and alarm features",
		Scales: []string{"Rome IV criteria", "Bristol stool scale"},
	},
	"endocrinology": {
		Name:   "endocrinology",
		Focus:  "energy, weight trajectory, temperature intolerance, polyuria/polydipsia, and hormonal symptom clusters",
		Scales: []string{"FINDRISC"},
	},
	"pulmonology": {
		Name:   "pulmonology",
		Focus:  "dyspnea, cough character and duration, wheeze, triggers, smoking exposure, and exercise tolerance",
		Scales: []string{"mMRC dyspnea scale", "CAT"},
	},
	"primary_care": {
		Name:   "primary_care",
		Focus:  "the overall symptom picture, preventive care gaps, and which complaints warrant referral",
		Scales: []string{},
	},
	"orthopedics": {
		Name:   "orthopedics",
		Focus:  "joint and musculoskeletal pain, mechanical symptoms, injury history, and functional limitation",
		Scales: []string{"KOOS", "Oswestry disability index"},
	},
	"rheumatology": {
		Name:   "rheumatology",
		Focus:  "joint swelling and stiffness patterns, morning stiffness duration, systemic features, and symmetry",
		Scales: []string{"DAS28", "HAQ-DI"},
	},
	"nephrology": {
		Name:   "nephrology",
		Focus:  "urinary changes, edema, blood pressure, and medication exposures relevant to renal function",
		Scales: []string{"CKD staging"},
	},
	"urology": {
		Name:   "urology",
		Focus:  "lower urinary tract symptoms, hematuria, flank pain, and sexual function concerns",
		Scales: []string{"IPSS"},
	},
	"gynecology": {
		Name:   "gynecology",
		Focus:  "menstrual patterns, pelvic pain, discharge changes, and reproductive history context",
		Scales: []string{},
	},
	"oncology": {
		Name:   "oncology",
		Focus:  "constitutional symptoms, unexplained weight loss, masses or lesions with progression, and family history",
		Scales: []string{"ECOG performance status"},
	},
	"physical_therapy": {
		Name:   "physical_therapy",
		Focus:  "movement limitations, pain with specific motions, functional goals, and response to activity modification",
		Scales: []string{"NPRS", "patient-specific functional scale"},
	},
}

// Specialties returns the supported specialty names.
func Specialties() []string {
	out := make([]string, 0, len(specialtyProfiles))
	for name := range specialtyProfiles {
		out = append(out, name)
	}
	return out
}
