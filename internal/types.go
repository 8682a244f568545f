package internal

type RawRow map[string]string

type RecordStatus string

const (
	StatusValid    RecordStatus = "valid"
	StatusExcluded RecordStatus = "excluded"
)

type CanonicalRecord struct {
	Code             string       `json:"code"`
	ShortDescription string       `json:"short_description"`
	LongDescription  string       `json:"long_description"`
	Category         string       `json:"category"`
	Chapter          string       `json:"chapter"`
	Status           RecordStatus `json:"status,omitempty"`
}

// Description returns the long description, falling back to the short one.
func (r CanonicalRecord) Description() string {
	if r.LongDescription != "" {
		return r.LongDescription
	}
	return r.ShortDescription
}

type ColumnMapping struct {
	Code             string `json:"code"`
	ShortDescription string `json:"short_description"`
	LongDescription  string `json:"long_description"`
	Category         string `json:"category,omitempty"`
	Chapter          string `json:"chapter,omitempty"`
}

type CanonicalTable struct {
	Records []CanonicalRecord
	Columns ColumnMapping
}

func (t CanonicalTable) Len() int {
	return len(t.Records)
}

type ItemSource string

const (
	SourceEmailText      ItemSource = "email_text"
	SourceEmailHTMLTable ItemSource = "email_html_table"
	SourceXLSX           ItemSource = "xlsx"
	SourcePDF            ItemSource = "pdf"
)

type ExtractionItem struct {
	LineNo  int
	Source  ItemSource
	RawLine string
	Query   string
	Meta    map[string]any
}

type MatchStatus string

type MatchReason string

const (
	MatchOK       MatchStatus = "OK"
	MatchReview   MatchStatus = "REVIEW"
	MatchNotFound MatchStatus = "NOT_FOUND"

	ReasonCode   MatchReason = "CODE"
	ReasonSingle MatchReason = "SINGLE"
	ReasonRanked MatchReason = "RANKED"
	ReasonNone   MatchReason = "NONE"
)

type MatchCandidate struct {
	Code             string `json:"code"`
	ShortDescription string `json:"shortDescription"`
	Score            int    `json:"score"`
}

type LookupResult struct {
	Status       MatchStatus      `json:"status"`
	Reason       MatchReason      `json:"reason"`
	TotalMatches int              `json:"totalMatches"`
	Record       *CanonicalRecord `json:"record"`
	Candidates   []MatchCandidate `json:"candidates"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type LookupExportRow struct {
	InputLineNo      int
	Source           string
	RawLine          string
	Query            string
	MatchStatus      string
	MatchReason      string
	TotalMatches     int
	Code             *string
	ShortDescription *string
	LongDescription  *string
	Category         *string
	Chapter          *string
	Candidate2Code   *string
	Candidate2Score  *int
}
