package postgres

import "github.com/secmon-lab/recall/pkg/domain/model"

// ToMigrateURL is exported for testing
var ToMigrateURL = toMigrateURL

// BuildSearch renders the search statement for q
func (p *Postgres) BuildSearch(q *model.MemorySearch) (string, []any, error) {
	return p.memory.buildSearch(q)
}

// BuildUpsert renders the upsert statement for memories
func (p *Postgres) BuildUpsert(memories []*model.Memory) (string, []any, error) {
	return p.memory.buildUpsert(memories)
}

// SearchSetting returns the statement Search runs before querying
func (p *Postgres) SearchSetting() string {
	return p.memory.iterativeScan.settingStatement()
}
