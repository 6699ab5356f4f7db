package config

import (
	"sync"
	"testing"

	"gorm.io/gorm/schema"
)

type guardedRecord struct {
	ID         int
	BusinessId string
}

func (r guardedRecord) GetBusinessId() string { return r.BusinessId }

type scopedColumnRecord struct {
	ID         int
	BusinessId string
}

type globalRecord struct {
	ID   int
	Name string
}

func parseTestSchema(t *testing.T, model any) *schema.Schema {
	t.Helper()
	s, err := schema.Parse(model, &sync.Map{}, schema.NamingStrategy{})
	if err != nil {
		t.Fatalf("parse schema: %v", err)
	}
	return s
}

func TestSchemaIsTenantOwned(t *testing.T) {
	if !schemaIsTenantOwned(parseTestSchema(t, &guardedRecord{})) {
		t.Fatal("model with GetBusinessId should be tenant owned")
	}
	if !schemaIsTenantOwned(parseTestSchema(t, &scopedColumnRecord{})) {
		t.Fatal("model with a business_id column should be tenant owned")
	}
	if schemaIsTenantOwned(parseTestSchema(t, &globalRecord{})) {
		t.Fatal("model without tenant markers must stay unscoped")
	}
	if schemaIsTenantOwned(nil) {
		t.Fatal("nil schema must stay unscoped")
	}
}
