package analysis

// Recommendations are suggestions for the tutor derived from a Result.
type Recommendations struct {
	ImmediateActions    []string `json:"immediate_actions"`
	EmotionalSupport    []string `json:"emotional_support"`
	CommunicationTips   []string `json:"communication_tips"`
	LongTermSuggestions []string `json:"long_term_suggestions"`
}

type recommendationSet struct {
	immediate     []string
	support       []string
	communication []string
	longTerm      []string
}

var emotionRecommendations = map[string]recommendationSet{
	"tristeza": {
		immediate: []string{"Ofrecer empatía y validación emocional"},
		support:   []string{"Sugerir actividades que generen bienestar"},
		longTerm:  []string{"Considerar apoyo profesional si persiste"},
	},
	"ansiedad": {
		immediate:     []string{"Ayudar con técnicas de respiración"},
		support:       []string{"Enfocarse en el momento presente"},
		communication: []string{"Usar un tono calmado y tranquilizador"},
	},
	"frustración": {
		immediate:     []string{"Validar la frustración sin minimizarla"},
		support:       []string{"Ayudar a identificar soluciones"},
		communication: []string{"Mantener un enfoque constructivo"},
	},
	"alegría": {
		immediate: []string{"Celebrar y reforzar el estado positivo"},
		support:   []string{"Aprovechar el momento para establecer metas"},
		longTerm:  []string{"Documentar qué generó esta alegría"},
	},
}

var styleRecommendations = map[string]recommendationSet{
	"evasivo": {
		communication: []string{"Crear un ambiente seguro para la expresión"},
		support:       []string{"Ser paciente y no presionar"},
		longTerm:      []string{"Trabajar en la confianza gradualmente"},
	},
	"agresivo": {
		immediate:     []string{"Mantener calma y no responder con agresividad"},
		communication: []string{"Establecer límites claros y respetuosos"},
		support:       []string{"Ayudar a identificar las causas subyacentes"},
	},
	"formal": {
		communication: []string{"Mantener un tono profesional pero cálido"},
		support:       []string{"Respetar la preferencia por la formalidad"},
	},
}

var priorityRecommendations = map[Tier]recommendationSet{
	TierCritica: {
		immediate: []string{"Contactar inmediatamente al tutor o profesional", "Evaluar necesidad de intervención de emergencia"},
		support:   []string{"Mantener presencia constante y apoyo inmediato"},
		longTerm:  []string{"Coordinar con servicios de salud mental"},
	},
	TierAlta: {
		immediate: []string{"Evaluar necesidad de intervención profesional"},
		support:   []string{"Mantener contacto frecuente y apoyo constante"},
	},
	TierMedia: {
		immediate: []string{"Monitorear cambios en el estado emocional"},
		support:   []string{"Ofrecer recursos de apoyo adicionales"},
	},
	TierBaja: {
		immediate: []string{"Observar tendencias en el estado emocional"},
		support:   []string{"Ofrecer apoyo preventivo"},
	},
}

var priorityHeadlines = map[Tier]string{
	TierCritica: "🚨 INTERVENCIÓN CRÍTICA REQUERIDA",
	TierAlta:    "⚠️ ATENCIÓN INMEDIATA REQUERIDA",
}

// Recommend builds tutor recommendations for an analysis result. Critical
// and high priorities lead the immediate actions with a headline.
func Recommend(r Result) Recommendations {
	rec := Recommendations{
		ImmediateActions:    []string{},
		EmotionalSupport:    []string{},
		CommunicationTips:   []string{},
		LongTermSuggestions: []string{},
	}
	if headline, ok := priorityHeadlines[r.Priority]; ok {
		rec.ImmediateActions = append(rec.ImmediateActions, headline)
	}
	rec.add(emotionRecommendations[normalizeLabel(r.Emotion)])
	rec.add(styleRecommendations[normalizeLabel(r.Style)])
	rec.add(priorityRecommendations[r.Priority])
	return rec
}

func (r *Recommendations) add(set recommendationSet) {
	r.ImmediateActions = append(r.ImmediateActions, set.immediate...)
	r.EmotionalSupport = append(r.EmotionalSupport, set.support...)
	r.CommunicationTips = append(r.CommunicationTips, set.communication...)
	r.LongTermSuggestions = append(r.LongTermSuggestions, set.longTerm...)
}
