package store

import (
	"sort"
	"sync"
	"time"

	"github.com/rzzdr/credit-risk-pipeline/pkg/models"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/errors"
	"github.com/rzzdr/credit-risk-pipeline/pkg/utils/logger"
)

// InMemoryLoanBookStore implements an in-memory loan book storage.
// Books are copied on the way in and out, so callers never share loans with the store.
type InMemoryLoanBookStore struct {
	books map[string]*models.LoanBook
	mu    sync.RWMutex
	now   func() time.Time
	log   *logger.Logger
}

// NewInMemoryLoanBookStore creates a new in-memory loan book store
func NewInMemoryLoanBookStore() *InMemoryLoanBookStore {
	return &InMemoryLoanBookStore{
		books: make(map[string]*models.LoanBook),
		now:   time.Now,
		log:   logger.GetLogger("store.loanbook"),
	}
}

// GetLoanBook retrieves a loan book by ID
func (s *InMemoryLoanBookStore) GetLoanBook(id string) (*models.LoanBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	book, exists := s.books[id]
	if !exists {
		return nil, errors.NotFound("loan book not found: " + id)
	}

	return copyBook(book), nil
}

// ListLoanBooks returns all stored loan books ordered by ID
func (s *InMemoryLoanBookStore) ListLoanBooks() ([]*models.LoanBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	books := make([]*models.LoanBook, 0, len(s.books))
	for _, b := range s.books {
		books = append(books, copyBook(b))
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })

	return books, nil
}

// SaveLoanBook saves or replaces a loan book, keeping the original creation time
func (s *InMemoryLoanBookStore) SaveLoanBook(book *models.LoanBook) error {
	if book == nil {
		return errors.InvalidArgument("cannot save nil loan book")
	}

	if book.ID == "" {
		return errors.InvalidArgument("loan book ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copyBook(book)
	now := s.now()
	stored.Updated = now
	if existing, ok := s.books[book.ID]; ok {
		stored.Created = existing.Created
	} else if stored.Created.IsZero() {
		stored.Created = now
	}

	s.books[book.ID] = stored
	s.log.Debugf("Saved loan book %s with %d loans", book.ID, len(book.Loans))
	return nil
}

// DeleteLoanBook removes a loan book by ID
func (s *InMemoryLoanBookStore) DeleteLoanBook(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[id]; !exists {
		return errors.NotFound("loan book not found: " + id)
	}

	delete(s.books, id)
	return nil
}

func copyBook(b *models.LoanBook) *models.LoanBook {
	c := *b
	c.Loans = make([]models.Loan, len(b.Loans))
	for i, loan := range b.Loans {
		c.Loans[i] = loan.Clone()
	}
	return &c
}
