package certs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// CertificateID derives the verification identifier for one row of a batch.
// It is a pure function of (batchID, rowIndex): retrying a row reproduces the
// same identifier, and distinct rows of a batch can never collide because the
// zero-padded index is part of the identifier itself.
func CertificateID(batchID uuid.UUID, rowIndex int) string {
	sum := sha256.Sum256([]byte(batchID.String() + ":" + strconv.Itoa(rowIndex)))
	return fmt.Sprintf("%s-%04d-%s",
		hex.EncodeToString(batchID[:4]),
		rowIndex,
		hex.EncodeToString(sum[:4]),
	)
}

// VerificationURL is the URL the QR code encodes and the static site serves.
func VerificationURL(baseURL, certificateID string) string {
	return strings.TrimRight(baseURL, "/") + "/verify/" + certificateID
}
