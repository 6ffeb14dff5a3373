package models

// DisplayResponse is the wire shape consumed by the embedded LCD
// client. Lines carries the title followed by up to three formatted
// arrival lines; the client renders it as-is, so this shape is a
// compatibility contract and changes here break deployed hardware.
type DisplayResponse struct {
	Title  string   `json:"title"`
	Lines  []string `json:"lines"`
	Ticker string   `json:"ticker"`
}

func NewDisplayResponse(title string, lines []string, ticker string) DisplayResponse {
	return DisplayResponse{
		Title:  title,
		Lines:  lines,
		Ticker: ticker,
	}
}
