package library

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campus-access-backend/config"
	"campus-access-backend/internal/db"
	"campus-access-backend/internal/model"
	"campus-access-backend/internal/registry"
	"campus-access-backend/internal/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	ctx := context.Background()
	gormDB, err := db.Init(ctx, &config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	require.NoError(t, err)
	s := store.NewGormStore(gormDB)
	reg := registry.New(s, 0)

	require.NoError(t, reg.SaveStudent(ctx, &model.Student{USN: "CS21001", Name: "Asha Rao", ValidUpto: time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)}))
	require.NoError(t, reg.SaveStudent(ctx, &model.Student{USN: "CS18007", Name: "Old Timer", ValidUpto: time.Date(2022, 6, 30, 0, 0, 0, 0, time.UTC)}))
	_, err = reg.IssueTag(ctx, "NFC001", "CS21001")
	require.NoError(t, err)
	_, err = reg.IssueTag(ctx, "NFC007", "CS18007")
	require.NoError(t, err)

	svc := NewService(s, reg)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	return svc, s
}

func TestService_Issue(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	loan, err := svc.Issue(ctx, "NFC001", "BK-1001")
	require.NoError(t, err)
	assert.Equal(t, "CS21001", loan.StudentUSN)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC), loan.DueDate)
	assert.NotZero(t, loan.ID)

	testCases := []struct {
		name    string
		tag     string
		book    string
		wantErr error
	}{
		{name: "book already out", tag: "NFC001", book: "BK-1001", wantErr: ErrAlreadyIssued},
		{name: "unknown tag", tag: "NFC999", book: "BK-2000", wantErr: ErrTagNotFound},
		{name: "expired card", tag: "NFC007", book: "BK-2001", wantErr: ErrIdentityExpired},
		{name: "missing book id", tag: "NFC001", book: " ", wantErr: ErrInvalid},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Issue(ctx, tc.tag, tc.book)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestService_ReturnAndReissue(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	loan, err := svc.Issue(ctx, "NFC001", "BK-1001")
	require.NoError(t, err)

	returned, err := svc.Return(ctx, loan.ID)
	require.NoError(t, err)
	require.NotNil(t, returned.ReturnDate)
	assert.Equal(t, model.BookReturned, returned.Status)

	_, err = svc.Return(ctx, loan.ID)
	assert.ErrorIs(t, err, ErrLoanNotFound)

	_, err = svc.Issue(ctx, "NFC001", "BK-1001")
	assert.NoError(t, err, "a returned book can be lent again")
}

func TestService_ListDerivesOverdue(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Issue(ctx, "NFC001", "BK-1001")
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "NFC001", "BK-1002")
	require.NoError(t, err)
	_, err = svc.Return(ctx, second.ID)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Date(2024, 4, 1, 10, 0, 0, 0, time.UTC) }
	loans, err := svc.List(ctx, "CS21001", false, 0)
	require.NoError(t, err)
	require.Len(t, loans, 2)
	statuses := map[string]model.BookStatus{}
	for _, l := range loans {
		statuses[l.BookID] = l.Status
	}
	assert.Equal(t, model.BookOverdue, statuses["BK-1001"])
	assert.Equal(t, model.BookReturned, statuses["BK-1002"])

	open, err := svc.List(ctx, "", true, 0)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "BK-1001", open[0].BookID)
}
