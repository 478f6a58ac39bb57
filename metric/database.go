package metric

import (
	"context"
	"time"

	"larder/storage"
	"larder/utils"
)

func database(as *utils.AppState) (time.Duration, error) {
	start := time.Now()
	if _, err := as.BunDB.NewSelect().
		Model((*storage.Item)(nil)).
		Where("url = ?", "").
		Exists(context.Background()); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}
