package parts

import (
	"cmp"
	"fmt"
	"slices"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// MaxNumber is the highest part number S3 accepts.
const MaxNumber = 10000

// Uploaded is a stored part and the ETag the store returned for it.
type Uploaded struct {
	Number int
	ETag   string
}

// CheckNumbers rejects an empty request and numbers outside 1..MaxNumber.
func CheckNumbers(numbers []int) error {
	if len(numbers) == 0 {
		return fmt.Errorf("%w: at least one part is required", storageerrors.ErrInvalidInput)
	}
	for _, n := range numbers {
		if err := checkNumber(n); err != nil {
			return err
		}
	}
	return nil
}

func checkNumber(n int) error {
	if n < 1 || n > MaxNumber {
		return fmt.Errorf("%w: part number %d is outside 1..%d", storageerrors.ErrInvalidInput, n, MaxNumber)
	}
	return nil
}

// Completion flattens partIDs into the list a completion call sends:
// ascending by part number, every part exactly once, every ETag present.
// Entries may come in any order and an entry may hold several parts.
func Completion(partIDs storagetypes.PartIDs) ([]Uploaded, error) {
	var list []Uploaded
	for _, entry := range partIDs {
		for n, etag := range entry {
			if err := checkNumber(n); err != nil {
				return nil, err
			}
			if etag == "" {
				return nil, fmt.Errorf("%w: part %d has no ETag", storageerrors.ErrInvalidInput, n)
			}
			list = append(list, Uploaded{Number: n, ETag: etag})
		}
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: at least one part is required", storageerrors.ErrInvalidInput)
	}

	slices.SortFunc(list, func(a, b Uploaded) int { return cmp.Compare(a.Number, b.Number) })
	for i := 1; i < len(list); i++ {
		if list[i].Number == list[i-1].Number {
			return nil, fmt.Errorf("%w: part %d listed more than once", storageerrors.ErrInvalidInput, list[i].Number)
		}
	}
	return list, nil
}
