// GreptimeDB-backed telemetry archive
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	ingesterContext "github.com/GreptimeTeam/greptimedb-ingester-go/context"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"satbus/internal/bus"
)

// Writer persists telemetry packets to GreptimeDB via the ingester
// client, one row per tick.
type Writer struct {
	client greptime.Client
	db     string
	table  string
	logger *slog.Logger
}

// NewWriter creates a Writer and auto-creates the target table if it
// does not already exist.
func NewWriter(endpoint, database, tableName string, logger *slog.Logger) (*Writer, error) {
	if tableName == "" {
		tableName = "satellite_telemetry"
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx := ingesterContext.NewContext(context.Background())
	client, err := greptime.NewClient(ctx, &greptime.Config{Endpoint: endpoint})
	if err != nil {
		return nil, err
	}

	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  sequence_number DOUBLE,
  battery_level_percent DOUBLE,
  battery_health DOUBLE,
  core_temp_c DOUBLE,
  thermal_mode STRING,
  thermal_health DOUBLE,
  comms_link_up STRING,
  bit_error_rate DOUBLE,
  comms_health DOUBLE,
  safety_level STRING,
  truncated STRING,
  ts TIMESTAMP TIME INDEX
) WITH (ttl='90d')
`, tableName)
	if _, err := client.SQL(ctx, ddl); err != nil {
		return nil, err
	}

	return &Writer{client: client, db: database, table: tableName, logger: logger}, nil
}

// telemetryRow is the flattened, column-oriented view of one telemetry
// packet. Kept separate from the table-building code so the mapping can
// be unit-tested without a live GreptimeDB client.
type telemetryRow struct {
	SequenceNumber      float64
	BatteryLevelPercent float64
	BatteryHealth       float64
	CoreTempC           float64
	ThermalMode         string
	ThermalHealth       float64
	CommsLinkUp         string
	BitErrorRate        float64
	CommsHealth         float64
	SafetyLevel         string
	Truncated           string
	TimestampMS         uint64
}

func toRow(pkt bus.TelemetryPacket, safetyLevel bus.SafetyLevel) telemetryRow {
	linkUp := pkt.Comms.Flags&0x1 != 0
	return telemetryRow{
		SequenceNumber:      float64(pkt.SequenceNumber),
		BatteryLevelPercent: float64(pkt.Power.BatteryLevelPercent),
		BatteryHealth:       float64(pkt.Power.Health),
		CoreTempC:           float64(pkt.Thermal.CoreTempC),
		ThermalMode:         string(pkt.Thermal.Mode),
		ThermalHealth:       float64(pkt.Thermal.Health),
		CommsLinkUp:         strconv.FormatBool(linkUp),
		BitErrorRate:        pkt.Comms.BitErrorRate,
		CommsHealth:         float64(pkt.Comms.Health),
		SafetyLevel:         string(safetyLevel),
		Truncated:           strconv.FormatBool(pkt.Truncated),
		TimestampMS:         pkt.TimestampMS,
	}
}

// Write inserts one telemetry packet row. safetyLevel is passed in
// separately since it is not carried on the wire packet itself.
func (w *Writer) Write(pkt bus.TelemetryPacket, safetyLevel bus.SafetyLevel) error {
	ctx := ingesterContext.NewContext(context.Background())
	row := toRow(pkt, safetyLevel)

	tbl := table.New(w.table)
	tbl.AddFieldColumn("sequence_number", types.Float64Type)
	tbl.AddFieldColumn("battery_level_percent", types.Float64Type)
	tbl.AddFieldColumn("battery_health", types.Float64Type)
	tbl.AddFieldColumn("core_temp_c", types.Float64Type)
	tbl.AddFieldColumn("thermal_mode", types.StringType)
	tbl.AddFieldColumn("thermal_health", types.Float64Type)
	tbl.AddFieldColumn("comms_link_up", types.StringType)
	tbl.AddFieldColumn("bit_error_rate", types.Float64Type)
	tbl.AddFieldColumn("comms_health", types.Float64Type)
	tbl.AddFieldColumn("safety_level", types.StringType)
	tbl.AddFieldColumn("truncated", types.StringType)
	tbl.SetTimeIndex("ts", types.TimestampType)

	tbl.AppendFieldValue("sequence_number", row.SequenceNumber)
	tbl.AppendFieldValue("battery_level_percent", row.BatteryLevelPercent)
	tbl.AppendFieldValue("battery_health", row.BatteryHealth)
	tbl.AppendFieldValue("core_temp_c", row.CoreTempC)
	tbl.AppendFieldValue("thermal_mode", row.ThermalMode)
	tbl.AppendFieldValue("thermal_health", row.ThermalHealth)
	tbl.AppendFieldValue("comms_link_up", row.CommsLinkUp)
	tbl.AppendFieldValue("bit_error_rate", row.BitErrorRate)
	tbl.AppendFieldValue("comms_health", row.CommsHealth)
	tbl.AppendFieldValue("safety_level", row.SafetyLevel)
	tbl.AppendFieldValue("truncated", row.Truncated)
	tbl.AppendTimeIndex(row.TimestampMS)

	if err := w.client.Write(ctx, w.db, []*table.Table{tbl}); err != nil {
		w.logger.Error("archive write failed", "error", err)
		return err
	}
	return nil
}
