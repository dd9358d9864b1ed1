package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrOutOfStock         = errors.New("checkout: product out of stock")
	ErrProductUnavailable = errors.New("checkout: product no longer available")
)

// OutOfStockError names the line that cannot be served.
type OutOfStockError struct {
	ProductID string
	Name      string
	Remaining int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("checkout: %q is out of stock (%d remaining)", e.Name, e.Remaining)
}

func (e *OutOfStockError) Is(target error) bool { return target == ErrOutOfStock }
