package domain

// Cursor continuation token plus the "more available" flag
type Cursor struct {
	Token   string
	HasMore bool
}

// HistoryPage one page of backlog, Messages ascending by timestamp
type HistoryPage struct {
	RoomID   string
	Messages []Message
	EndToken string
	HasMore  bool
}

// Cursor next cursor for backward pagination
func (p HistoryPage) Cursor() Cursor {
	return Cursor{Token: p.EndToken, HasMore: p.HasMore}
}
