package source

import (
	"context"
	"fmt"

	"spendboard/internal/core"
)

// maxPages bounds CollectPages against a backend that never reports a last page.
const maxPages = 10000

// CollectPages walks every page of q starting at q.Page and returns the
// concatenated content.
func CollectPages(ctx context.Context, l TransactionLister, q Query) ([]core.Transaction, error) {
	var out []core.Transaction
	for i := 0; i < maxPages; i++ {
		page, err := l.ListTransactions(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", q.Page, err)
		}
		out = append(out, page.Content...)
		if len(page.Content) == 0 || page.Last() {
			return out, nil
		}
		q.Page++
	}
	return out, fmt.Errorf("stopped after %d pages", maxPages)
}
