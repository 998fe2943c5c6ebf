package domain

// Decision is the AI verdict on whether a ticket gets an automatic reply.
type Decision string

const (
	DecisionRespond Decision = "Respond"
	DecisionSkip    Decision = "Skip"
)

// Sentiment is the AI-inferred customer sentiment.
type Sentiment string

const (
	SentimentPositive Sentiment = "Positive"
	SentimentNeutral  Sentiment = "Neutral"
	SentimentNegative Sentiment = "Negative"
	SentimentUnknown  Sentiment = "Unknown"
)

// Analysis is the AI text service's verdict for one ticket conversation.
type Analysis struct {
	Decision  Decision
	Sentiment Sentiment
	Reply     string
}

// DepartmentUnknown is returned by classification when no configured team
// label fits; the caller treats it as "do not route".
const DepartmentUnknown = "Unknown"
