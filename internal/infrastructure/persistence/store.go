package persistence

// Store groups the repositories of one database
type Store struct {
	*Database
	Accounts *AccountRepository
	Bookings *BookingRepository
	Content  *ContentRepository
}

// NewStore wires the repositories on db
func NewStore(db *Database) *Store {
	return &Store{
		Database: db,
		Accounts: NewAccountRepository(db.DB),
		Bookings: NewBookingRepository(db.DB),
		Content:  NewContentRepository(db.DB),
	}
}
