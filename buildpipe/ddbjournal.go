package buildpipe

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/guregu/dynamo/v2"
)

// DynamoJournal keeps build progress in a DynamoDB table with hash key
// "nonce". Writes use optimistic locking on "version".
type DynamoJournal struct {
	table dynamo.Table
}

func NewDynamoJournal(ddbClient *dynamodb.Client, tableName string) *DynamoJournal {
	db := dynamo.NewFromIface(ddbClient)
	return &DynamoJournal{table: db.Table(tableName)}
}

func (j *DynamoJournal) Get(ctx context.Context, nonce string) (*Progress, error) {
	p := new(Progress)
	err := j.table.Get("nonce", nonce).One(ctx, p)
	if err != nil {
		if errors.Is(err, dynamo.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return p, nil
}

func (j *DynamoJournal) Save(ctx context.Context, p *Progress) error {
	p.Version++
	put := j.table.Put(p).If("attribute_not_exists(version) OR version = ?", p.Version-1)
	if err := put.Run(ctx); err != nil {
		p.Version--
		if dynamo.IsCondCheckFailed(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}
