// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Percentages is a payout schedule stored as a CBOR array
//
//nolint:recvcheck
type Percentages []uint64

func (p Percentages) Value() (driver.Value, error) {
	if len(p) == 0 {
		return []byte{}, nil
	}
	data, err := cbor.Marshal([]uint64(p))
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (p *Percentages) Scan(val any) error {
	var data []byte
	switch v := val.(type) {
	case nil:
		*p = nil
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf(
			"value was not expected type, wanted []byte, got %T",
			val,
		)
	}
	if len(data) == 0 {
		*p = nil
		return nil
	}
	var tmp []uint64
	if err := cbor.Unmarshal(data, &tmp); err != nil {
		return fmt.Errorf("failed to decode percentages: %w", err)
	}
	*p = Percentages(tmp)
	return nil
}

// GormDataType maps the column to the dialect's binary type
func (Percentages) GormDataType() string {
	return "bytes"
}

// Sum returns the total of all percentages
func (p Percentages) Sum() uint64 {
	var ret uint64
	for _, v := range p {
		ret += v
	}
	return ret
}

// ErrBlobKeyNotFound is returned by blob operations when a key is missing
var ErrBlobKeyNotFound = errors.New("blob key not found")

// ErrNilTxn is returned when a nil transaction is provided where a valid transaction is required
var ErrNilTxn = errors.New("nil transaction")

// ErrNoStoreAvailable is returned when no store is available for a read-write transaction
var ErrNoStoreAvailable = errors.New("no store available")

// ErrTxnFinished is returned when a finished transaction is reused
var ErrTxnFinished = errors.New("transaction already finished")

// ErrTxnWrongType is returned when a transaction belongs to another store type
var ErrTxnWrongType = errors.New("invalid transaction type")

// ErrBlobStoreUnavailable is returned when the blob transaction handle is missing
var ErrBlobStoreUnavailable = errors.New("blob store unavailable")

type BlobItem interface {
	Key() []byte
	ValueCopy(dst []byte) ([]byte, error)
}

// BlobIterator provides key iteration over the blob store. Items must only be
// accessed while the transaction used to create the iterator is still active.
type BlobIterator interface {
	Rewind()
	Seek(prefix []byte)
	Valid() bool
	ValidForPrefix(prefix []byte) bool
	Next()
	Item() BlobItem
	Close()
	Err() error
}

// BlobIteratorOptions configures blob iterator creation
type BlobIteratorOptions struct {
	Prefix  []byte
	Reverse bool
}

// Txn is a simple transaction handle for commit/rollback only.
type Txn interface {
	Commit() error
	Rollback() error
}
