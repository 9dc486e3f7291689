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

package rank

import (
	"github.com/blinklabs-io/grove/database"
)

// TablePopulation is a score table scope in the metadata store
type TablePopulation struct {
	DB    *database.Database
	Table database.ScoreTable
	Scope string
}

// Populations returns a population family over a score table
func Populations(db *database.Database, table database.ScoreTable) func(string) Population {
	return func(scope string) Population {
		return &TablePopulation{DB: db, Table: table, Scope: scope}
	}
}

func (p *TablePopulation) Size(txn *database.Txn) (uint64, error) {
	return p.DB.GetSize(p.Table.SizeID(p.Scope), txn)
}

func (p *TablePopulation) Page(
	txn *database.Txn,
	after *Entry,
	limit int,
) ([]Entry, error) {
	var afterEntry *database.ScoreEntry
	if after != nil {
		afterEntry = &database.ScoreEntry{
			Account: after.Account,
			Score:   after.Score,
		}
	}
	rows, err := p.DB.ScorePage(p.Table, p.Scope, afterEntry, limit, txn)
	if err != nil {
		return nil, err
	}
	ret := make([]Entry, len(rows))
	for i, row := range rows {
		ret[i] = Entry{Account: row.Account, Score: row.Score}
	}
	return ret, nil
}

func (p *TablePopulation) SetRank(
	txn *database.Txn,
	account string,
	rank uint64,
) error {
	return p.DB.SetScoreRank(p.Table, p.Scope, account, rank, txn)
}

// Locate reads the next page of at most limit members after the given member
// and returns the offset of account within it, or -1 when the page does not
// hold it. Callers walk large populations over several steps.
func Locate(
	txn *database.Txn,
	pop Population,
	account string,
	after *Entry,
	limit int,
) (int, []Entry, error) {
	page, err := pop.Page(txn, after, limit)
	if err != nil {
		return -1, nil, err
	}
	for i, entry := range page {
		if entry.Account == account {
			return i, page, nil
		}
	}
	return -1, page, nil
}
