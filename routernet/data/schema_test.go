package data

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
)

func TestTransferSchema(t *testing.T) {
	schema := TransferSchema()

	expectedNames := []string{"from", "to", "amount"}
	if schema.NumFields() != len(expectedNames) {
		t.Fatalf("Expected %d fields, got %d", len(expectedNames), schema.NumFields())
	}
	for i, name := range expectedNames {
		field := schema.Field(i)
		if field.Name != name {
			t.Errorf("Field %d: expected %s, got %s", i, name, field.Name)
		}
		if field.Type.ID() != arrow.STRING {
			t.Errorf("Field %s: expected string, got %s", name, field.Type)
		}
	}
}

func TestReceiptSchema(t *testing.T) {
	schema := ReceiptSchema()

	if schema.NumFields() != 8 {
		t.Fatalf("Expected 8 fields, got %d", schema.NumFields())
	}

	errField := schema.Field(5)
	if errField.Name != "error" || !errField.Nullable {
		t.Errorf("Expected nullable 'error' field, got %s nullable=%v", errField.Name, errField.Nullable)
	}
}

func TestLayerSchema(t *testing.T) {
	schema := LayerSchema()

	if schema.NumFields() != 6 {
		t.Fatalf("Expected 6 fields, got %d", schema.NumFields())
	}

	outputsField := schema.Field(5)
	if outputsField.Name != "outputs" {
		t.Errorf("Expected field 5 to be 'outputs', got %s", outputsField.Name)
	}
	if outputsField.Type.ID() != arrow.LIST {
		t.Errorf("Expected 'outputs' to be List type, got %s", outputsField.Type.ID())
	}
}
