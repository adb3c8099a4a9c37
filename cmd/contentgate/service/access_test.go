package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/cmd/contentgate/repository"
)

func sampleUpload(visibility models.Visibility) models.Upload {
	slug := "AbCdEfGh12"
	return models.Upload{
		ID:         uuid.New(),
		BlobID:     "blob-" + string(visibility),
		Owner:      owner,
		Filename:   "file.pdf",
		MimeType:   "application/pdf",
		Size:       42,
		Visibility: visibility,
		Price:      decimal.RequireFromString("1.5"),
		Currency:   "SUI",
		Slug:       &slug,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
}

func TestProject(t *testing.T) {
	tests := []struct {
		name       string
		visibility models.Visibility
		requester  string
		purchased  bool
		wantBlob   bool
	}{
		{"public anonymous", models.VisibilityPublic, "", false, true},
		{"public stranger", models.VisibilityPublic, "0xstranger", false, true},
		{"paid owner", models.VisibilityPaid, owner, false, true},
		{"paid buyer", models.VisibilityPaid, buyer, true, true},
		{"paid stranger", models.VisibilityPaid, "0xstranger", false, false},
		{"paid anonymous", models.VisibilityPaid, "", false, false},
		{"private owner", models.VisibilityPrivate, owner, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upload := sampleUpload(tt.visibility)
			got := Project(upload, tt.requester, tt.purchased)

			if tt.wantBlob {
				assert.Equal(t, upload.BlobID, got.BlobID)
			} else {
				assert.Equal(t, models.PaymentRequiredBlobID, got.BlobID)
			}

			// Only the blob id may differ
			got.BlobID = upload.BlobID
			assert.Equal(t, upload, got)
		})
	}
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	upload := sampleUpload(models.VisibilityPaid)
	_ = Project(upload, "0xstranger", false)
	assert.Equal(t, "blob-paid", upload.BlobID)
}

func TestCanView(t *testing.T) {
	private := sampleUpload(models.VisibilityPrivate)
	assert.True(t, CanView(&private, owner))
	assert.False(t, CanView(&private, "0xstranger"))
	assert.False(t, CanView(&private, ""))

	paid := sampleUpload(models.VisibilityPaid)
	assert.True(t, CanView(&paid, ""))
}

// countingLedger counts bulk and single purchase lookups
type countingLedger struct {
	*repository.MemoryPurchaseRepository
	amongCalls  int
	existsCalls int
}

func (l *countingLedger) PurchasedAmong(ctx context.Context, buyer string, ids []uuid.UUID) (map[uuid.UUID]bool, error) {
	l.amongCalls++
	return l.MemoryPurchaseRepository.PurchasedAmong(ctx, buyer, ids)
}

func (l *countingLedger) Exists(ctx context.Context, uploadID uuid.UUID, buyer string) (bool, error) {
	l.existsCalls++
	return l.MemoryPurchaseRepository.Exists(ctx, uploadID, buyer)
}

func TestProjectListSingleLookup(t *testing.T) {
	ctx := context.Background()
	ledger := &countingLedger{MemoryPurchaseRepository: repository.NewMemoryPurchaseRepository()}
	gate := NewAccessGate(ledger)

	bought := sampleUpload(models.VisibilityPaid)
	unbought := sampleUpload(models.VisibilityPaid)
	public := sampleUpload(models.VisibilityPublic)
	private := sampleUpload(models.VisibilityPrivate)

	_, err := ledger.InsertIfAbsent(ctx, &models.Purchase{
		ID: uuid.New(), UploadID: bought.ID, BuyerAddress: buyer, PaymentProof: digestA, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	out, err := gate.ProjectList(ctx, []*models.Upload{&bought, &unbought, &public, &private}, buyer)
	require.NoError(t, err)
	require.Len(t, out, 3, "private uploads of others are dropped")

	assert.Equal(t, bought.BlobID, out[0].BlobID)
	assert.Equal(t, models.PaymentRequiredBlobID, out[1].BlobID)
	assert.Equal(t, public.BlobID, out[2].BlobID)

	assert.Equal(t, 1, ledger.amongCalls)
	assert.Equal(t, 0, ledger.existsCalls)
}

func TestProjectListAnonymousSkipsLedger(t *testing.T) {
	ledger := &countingLedger{MemoryPurchaseRepository: repository.NewMemoryPurchaseRepository()}
	gate := NewAccessGate(ledger)
	paid := sampleUpload(models.VisibilityPaid)

	out, err := gate.ProjectList(context.Background(), []*models.Upload{&paid}, "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, models.PaymentRequiredBlobID, out[0].BlobID)
	assert.Equal(t, 0, ledger.amongCalls)
}

func TestProjectOne(t *testing.T) {
	ctx := context.Background()
	ledger := repository.NewMemoryPurchaseRepository()
	gate := NewAccessGate(ledger)

	private := sampleUpload(models.VisibilityPrivate)
	_, err := gate.ProjectOne(ctx, &private, "0xstranger")
	assertKind(t, err, KindForbidden)

	got, err := gate.ProjectOne(ctx, &private, owner)
	require.NoError(t, err)
	assert.Equal(t, private.BlobID, got.BlobID)

	paid := sampleUpload(models.VisibilityPaid)
	got, err = gate.ProjectOne(ctx, &paid, buyer)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRequiredBlobID, got.BlobID)

	_, err = ledger.InsertIfAbsent(ctx, &models.Purchase{
		ID: uuid.New(), UploadID: paid.ID, BuyerAddress: buyer, PaymentProof: digestA, CreatedAt: time.Now(),
	})
	require.NoError(t, err)

	got, err = gate.ProjectOne(ctx, &paid, buyer)
	require.NoError(t, err)
	assert.Equal(t, paid.BlobID, got.BlobID)
}
