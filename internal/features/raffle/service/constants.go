package service

const (
	MaxBonusAttempts   = 5   // re-selections after a conflicting bonus ticket commit
	DefaultDrawsLimit  = 20  // draws returned by history listings
	ArchivedSalesLimit = 100 // archived sales returned per user
)
