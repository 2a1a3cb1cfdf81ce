package interfaces

import (
	"bytes"
	"testing"
	"time"

	"solarshare/internal/ledger/application"
	ledger "solarshare/internal/ledger/domain"
)

func sampleReport() (application.Status, []ledger.Participant) {
	status := application.Status{
		Phase:       ledger.PhaseActive,
		Capacity:    3,
		Registered:  3,
		Round:       12,
		ActivatedAt: time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	registry := []ledger.Participant{
		{Identity: "plant", Name: "Rooftop Plant", Role: ledger.RoleProducer, CumulativeTotal: 240 * ledger.UnitScale, CumulativeSharedUsage: 180 * ledger.UnitScale},
		{Identity: "alice", Name: "Alice", Role: ledger.RoleConsumer, CumulativeTotal: 90 * ledger.UnitScale, CumulativeSharedUsage: 70 * ledger.UnitScale},
		{Identity: "bob", Name: "Bob", Role: ledger.RoleConsumer, CumulativeTotal: 150 * ledger.UnitScale, CumulativeSharedUsage: 110 * ledger.UnitScale},
	}
	return status, registry
}

func TestBuildCommunityReportPDF(t *testing.T) {
	status, registry := sampleReport()
	data, err := BuildCommunityReportPDF(status, registry)
	if err != nil {
		t.Fatalf("build pdf: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty pdf")
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Fatal("expected pdf magic bytes")
	}
}

func TestBuildCommunityReportXLSX(t *testing.T) {
	status, registry := sampleReport()
	data, err := BuildCommunityReportXLSX(status, registry)
	if err != nil {
		t.Fatalf("build xlsx: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty xlsx")
	}
	// XLSX files are zip archives.
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Fatal("expected zip magic bytes")
	}
}
