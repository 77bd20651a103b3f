package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"condominia/contexts/governance/assembly-service/domain/entities"
	domainerrors "condominia/contexts/governance/assembly-service/domain/errors"
	"condominia/contexts/governance/assembly-service/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	tableAssemblies = "assemblies"
	tableVoters     = "eligible_voters"
	tableAttendance = "attendance_records"
	tableVotes      = "votes"
	tableGates      = "agenda_item_gates"
	tableResidents  = "residents"
)

const delegateChanged = "CASE WHEN " + tableAttendance + ".delegate_name IS DISTINCT FROM EXCLUDED.delegate_name"

// Repository serves one tenant schema. Every statement names a
// schema-qualified table, so the shared pool never depends on search_path.
type Repository struct {
	db     *gorm.DB
	schema string
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, schema string, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		schema: schema,
		logger: logger,
	}
}

func (r *Repository) table(name string) string {
	return r.schema + "." + name
}

func (r *Repository) CreateAssembly(ctx context.Context, assembly entities.Assembly, voters []entities.EligibleVoter) error {
	row, err := assemblyModelFromEntity(assembly)
	if err != nil {
		return domainerrors.Invalid("agenda cannot be encoded: " + err.Error())
	}
	voterRows := make([]voterModel, 0, len(voters))
	for _, voter := range voters {
		voterRows = append(voterRows, voterModelFromEntity(voter))
	}
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Table(r.table(tableAssemblies)).Create(&row).Error; err != nil {
			return err
		}
		if len(voterRows) == 0 {
			return nil
		}
		return tx.Table(r.table(tableVoters)).Create(&voterRows).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domainerrors.Reject(domainerrors.ErrIdempotencyConflict, assembly.AssemblyID).Because("assembly id already used")
		}
		return r.logError("governance_repo_create_assembly_failed", err,
			"assembly_id", assembly.AssemblyID,
			"voters", len(voterRows),
		)
	}
	return nil
}

func (r *Repository) GetAssembly(ctx context.Context, assemblyID string) (entities.Assembly, error) {
	id := strings.TrimSpace(assemblyID)
	var row assemblyModel
	err := r.db.WithContext(ctx).
		Table(r.table(tableAssemblies)).
		Where("id = ?", id).
		Take(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Assembly{}, domainerrors.Reject(domainerrors.ErrAssemblyNotFound, id)
		}
		return entities.Assembly{}, r.logError("governance_repo_get_assembly_failed", err, "assembly_id", id)
	}
	return row.toEntity()
}

func (r *Repository) ListAssemblies(ctx context.Context, filter ports.AssemblyFilter) ([]entities.Assembly, error) {
	tx := r.db.WithContext(ctx).Table(r.table(tableAssemblies))
	if filter.Status != "" {
		tx = tx.Where("status = ?", string(filter.Status))
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	var rows []assemblyModel
	if err := tx.Order("scheduled_start ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_assemblies_failed", err, "status", string(filter.Status))
	}
	items := make([]entities.Assembly, 0, len(rows))
	for _, row := range rows {
		item, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// TransitionAssembly issues a single conditional UPDATE. Zero affected rows
// means the status moved first, or the assembly does not exist.
func (r *Repository) TransitionAssembly(ctx context.Context, transition ports.StatusTransition) (entities.Assembly, error) {
	from := make([]string, 0, len(transition.From))
	for _, status := range transition.From {
		from = append(from, string(status))
	}
	updates := map[string]any{
		"status":     string(transition.To),
		"updated_at": transition.UpdatedAt.UTC(),
	}
	if transition.StartedAt != nil {
		updates["started_at"] = transition.StartedAt.UTC()
	}
	if transition.EndedAt != nil {
		updates["ended_at"] = transition.EndedAt.UTC()
	}
	if transition.CancelReason != "" {
		updates["cancel_reason"] = transition.CancelReason
	}
	result := r.db.WithContext(ctx).
		Table(r.table(tableAssemblies)).
		Where("id = ?", transition.AssemblyID).
		Where("status IN ?", from).
		Updates(updates)
	if result.Error != nil {
		return entities.Assembly{}, r.logError("governance_repo_transition_assembly_failed", result.Error,
			"assembly_id", transition.AssemblyID,
			"to", string(transition.To),
		)
	}
	if result.RowsAffected == 0 {
		return entities.Assembly{}, r.missedTransition(ctx, transition.AssemblyID)
	}
	return r.GetAssembly(ctx, transition.AssemblyID)
}

func (r *Repository) UpdatePlannedAssembly(ctx context.Context, assembly entities.Assembly) error {
	agenda, err := encodeAgenda(assembly.Agenda)
	if err != nil {
		return domainerrors.Invalid("agenda cannot be encoded: " + err.Error())
	}
	result := r.db.WithContext(ctx).
		Table(r.table(tableAssemblies)).
		Where("id = ?", assembly.AssemblyID).
		Where("status = ?", string(entities.AssemblyStatusPlanned)).
		Updates(map[string]any{
			"title":           assembly.Title,
			"location":        assembly.Location,
			"scheduled_start": assembly.ScheduledStart.UTC(),
			"agenda":          agenda,
			"quorum_pct":      assembly.QuorumPct,
			"updated_at":      assembly.UpdatedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("governance_repo_update_assembly_failed", result.Error, "assembly_id", assembly.AssemblyID)
	}
	if result.RowsAffected == 0 {
		return r.missedTransition(ctx, assembly.AssemblyID)
	}
	return nil
}

func (r *Repository) DeletePlannedAssembly(ctx context.Context, assemblyID string) error {
	id := strings.TrimSpace(assemblyID)
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Table(r.table(tableAssemblies)).
			Where("id = ?", id).
			Where("status = ?", string(entities.AssemblyStatusPlanned)).
			Delete(&assemblyModel{})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		if affected == 0 {
			return nil
		}
		if err := tx.Table(r.table(tableAttendance)).Where("assembly_id = ?", id).Delete(&attendanceModel{}).Error; err != nil {
			return err
		}
		return tx.Table(r.table(tableVoters)).Where("assembly_id = ?", id).Delete(&voterModel{}).Error
	})
	if err != nil {
		return r.logError("governance_repo_delete_assembly_failed", err, "assembly_id", id)
	}
	if affected == 0 {
		return r.missedTransition(ctx, id)
	}
	return nil
}

func (r *Repository) ListEligibleVoters(ctx context.Context, assemblyID string) ([]entities.EligibleVoter, error) {
	var rows []voterModel
	if err := r.db.WithContext(ctx).
		Table(r.table(tableVoters)).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		Order("resident_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_voters_failed", err, "assembly_id", strings.TrimSpace(assemblyID))
	}
	items := make([]entities.EligibleVoter, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// UpsertAttendance relies on the (assembly_id, resident_id) key; a repeated
// check-in refreshes the confirmation and leaves verification untouched.
func (r *Repository) UpsertAttendance(ctx context.Context, record entities.AttendanceRecord) (entities.AttendanceRecord, error) {
	row := attendanceModelFromEntity(record)
	row.Confirmed = true
	err := r.db.WithContext(ctx).
		Table(r.table(tableAttendance)).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "assembly_id"}, {Name: "resident_id"}},
			// A changed delegate voids the earlier verification.
			DoUpdates: clause.Assignments(map[string]any{
				"confirmed":     true,
				"confirmed_at":  row.ConfirmedAt,
				"delegate_name": row.DelegateName,
				"verified":      gorm.Expr(delegateChanged + " THEN false ELSE " + tableAttendance + ".verified END"),
				"verified_by":   gorm.Expr(delegateChanged + " THEN '' ELSE " + tableAttendance + ".verified_by END"),
				"verified_at":   gorm.Expr(delegateChanged + " THEN NULL ELSE " + tableAttendance + ".verified_at END"),
				"updated_at":    row.UpdatedAt,
			}),
		}).
		Create(&row).
		Error
	if err != nil {
		return entities.AttendanceRecord{}, r.logError("governance_repo_upsert_attendance_failed", err,
			"assembly_id", record.AssemblyID,
			"resident_id", record.ResidentID,
		)
	}
	stored, found, err := r.GetAttendance(ctx, record.AssemblyID, record.ResidentID)
	if err != nil {
		return entities.AttendanceRecord{}, err
	}
	if !found {
		return entities.AttendanceRecord{}, domainerrors.Unavailable("reload attendance", errors.New("upserted row not visible"))
	}
	return stored, nil
}

func (r *Repository) MarkAttendanceVerified(
	ctx context.Context,
	assemblyID string,
	residentID string,
	verifiedBy string,
	verifiedAt time.Time,
) (entities.AttendanceRecord, error) {
	id := strings.TrimSpace(assemblyID)
	resident := strings.TrimSpace(residentID)
	result := r.db.WithContext(ctx).
		Table(r.table(tableAttendance)).
		Where("assembly_id = ?", id).
		Where("resident_id = ?", resident).
		Where("confirmed = ?", true).
		Updates(map[string]any{
			"verified":    true,
			"verified_by": strings.TrimSpace(verifiedBy),
			"verified_at": verifiedAt.UTC(),
			"updated_at":  verifiedAt.UTC(),
		})
	if result.Error != nil {
		return entities.AttendanceRecord{}, r.logError("governance_repo_verify_attendance_failed", result.Error,
			"assembly_id", id,
			"resident_id", resident,
		)
	}
	if result.RowsAffected == 0 {
		return entities.AttendanceRecord{}, domainerrors.Reject(domainerrors.ErrAttendanceNotFound, id).Resident(resident)
	}
	record, found, err := r.GetAttendance(ctx, id, resident)
	if err != nil {
		return entities.AttendanceRecord{}, err
	}
	if !found {
		return entities.AttendanceRecord{}, domainerrors.Reject(domainerrors.ErrAttendanceNotFound, id).Resident(resident)
	}
	return record, nil
}

func (r *Repository) GetAttendance(ctx context.Context, assemblyID string, residentID string) (entities.AttendanceRecord, bool, error) {
	var row attendanceModel
	err := r.db.WithContext(ctx).
		Table(r.table(tableAttendance)).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		Where("resident_id = ?", strings.TrimSpace(residentID)).
		Take(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.AttendanceRecord{}, false, nil
		}
		return entities.AttendanceRecord{}, false, r.logError("governance_repo_get_attendance_failed", err,
			"assembly_id", strings.TrimSpace(assemblyID),
			"resident_id", strings.TrimSpace(residentID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListAttendance(ctx context.Context, assemblyID string) ([]entities.AttendanceRecord, error) {
	var rows []attendanceModel
	if err := r.db.WithContext(ctx).
		Table(r.table(tableAttendance)).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		Order("resident_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_attendance_failed", err, "assembly_id", strings.TrimSpace(assemblyID))
	}
	items := make([]entities.AttendanceRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

// InsertVote is a plain INSERT. The unique index on (assembly_id,
// agenda_numeral, resident_id) decides concurrent duplicates.
func (r *Repository) InsertVote(ctx context.Context, vote entities.Vote) error {
	row := voteModelFromEntity(vote)
	if err := r.db.WithContext(ctx).Table(r.table(tableVotes)).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrDuplicateVote
		}
		return r.logError("governance_repo_insert_vote_failed", err,
			"assembly_id", vote.AssemblyID,
			"agenda_numeral", vote.AgendaNumeral,
			"resident_id", vote.ResidentID,
		)
	}
	return nil
}

func (r *Repository) ListVotesByItem(ctx context.Context, assemblyID string, agendaNumeral int) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Table(r.table(tableVotes)).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		Where("agenda_numeral = ?", agendaNumeral).
		Order("cast_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_item_votes_failed", err,
			"assembly_id", strings.TrimSpace(assemblyID),
			"agenda_numeral", agendaNumeral,
		)
	}
	return toVoteEntities(rows), nil
}

func (r *Repository) ListVotesByAssembly(ctx context.Context, assemblyID string) ([]entities.Vote, error) {
	var rows []voteModel
	if err := r.db.WithContext(ctx).
		Table(r.table(tableVotes)).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		Order("agenda_numeral ASC").
		Order("cast_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_assembly_votes_failed", err, "assembly_id", strings.TrimSpace(assemblyID))
	}
	return toVoteEntities(rows), nil
}

func (r *Repository) GetItemGate(ctx context.Context, assemblyID string, agendaNumeral int) (entities.ItemGate, bool, error) {
	var row gateModel
	err := r.db.WithContext(ctx).
		Table(r.table(tableGates)).
		Where("assembly_id = ?", strings.TrimSpace(assemblyID)).
		Where("agenda_numeral = ?", agendaNumeral).
		Take(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.ItemGate{}, false, nil
		}
		return entities.ItemGate{}, false, r.logError("governance_repo_get_item_gate_failed", err,
			"assembly_id", strings.TrimSpace(assemblyID),
			"agenda_numeral", agendaNumeral,
		)
	}
	return row.toEntity(), true, nil
}

// OpenItemGate inserts the gate if absent. When two first votes race, both
// read back the single stored gate.
func (r *Repository) OpenItemGate(ctx context.Context, gate entities.ItemGate) (entities.ItemGate, error) {
	row := gateModelFromEntity(gate)
	create := r.db.WithContext(ctx).
		Table(r.table(tableGates)).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "assembly_id"}, {Name: "agenda_numeral"}},
			DoNothing: true,
		}).
		Create(&row)
	if create.Error != nil {
		return entities.ItemGate{}, r.logError("governance_repo_open_item_gate_failed", create.Error,
			"assembly_id", gate.AssemblyID,
			"agenda_numeral", gate.AgendaNumeral,
		)
	}
	if create.RowsAffected > 0 {
		return gate, nil
	}
	stored, found, err := r.GetItemGate(ctx, gate.AssemblyID, gate.AgendaNumeral)
	if err != nil {
		return entities.ItemGate{}, err
	}
	if !found {
		return entities.ItemGate{}, domainerrors.Unavailable("reload item gate", errors.New("conflicting gate not visible"))
	}
	return stored, nil
}

func (r *Repository) ListEligibleResidents(ctx context.Context) ([]ports.Resident, error) {
	var rows []residentModel
	if err := r.db.WithContext(ctx).
		Table(r.table(tableResidents)).
		Where("active = ?", true).
		Order("resident_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("governance_repo_list_residents_failed", err)
	}
	items := make([]ports.Resident, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.Resident{
			ResidentID: row.ResidentID,
			UnitID:     row.UnitID,
			Weight:     row.Weight,
			Active:     row.Active,
		})
	}
	return items, nil
}

// missedTransition tells a lost compare-and-swap apart from a missing row.
func (r *Repository) missedTransition(ctx context.Context, assemblyID string) error {
	var count int64
	if err := r.db.WithContext(ctx).
		Table(r.table(tableAssemblies)).
		Where("id = ?", assemblyID).
		Count(&count).Error; err != nil {
		return r.logError("governance_repo_transition_lookup_failed", err, "assembly_id", assemblyID)
	}
	if count == 0 {
		return domainerrors.Reject(domainerrors.ErrAssemblyNotFound, assemblyID)
	}
	return domainerrors.Reject(domainerrors.ErrInvalidTransition, assemblyID).Because("status changed concurrently")
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	return logFailure(r.logger, event, err, append([]any{"schema", r.schema}, attrs...)...)
}

// logFailure records the driver error in full and hands callers the generic
// retryable kind.
func logFailure(logger *slog.Logger, event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "governance/assembly-service",
		"layer", "adapter",
		"error", err.Error(),
	)
	if isUndefinedTable(err) {
		fields = append(fields, "namespace_provisioned", false)
	}
	fields = append(fields, attrs...)
	logger.Error("governance repository operation failed", fields...)
	return domainerrors.Unavailable(event, err)
}

type agendaItemModel struct {
	Numeral         int      `json:"numeral"`
	Topic           string   `json:"topic"`
	DurationSeconds int64    `json:"duration_seconds"`
	Notes           string   `json:"notes,omitempty"`
	Options         []string `json:"options,omitempty"`
}

type assemblyModel struct {
	ID                 string         `gorm:"column:id;primaryKey"`
	TenantKey          string         `gorm:"column:tenant_key"`
	Title              string         `gorm:"column:title"`
	Type               string         `gorm:"column:type"`
	ScheduledStart     time.Time      `gorm:"column:scheduled_start"`
	Location           string         `gorm:"column:location"`
	Agenda             datatypes.JSON `gorm:"column:agenda"`
	Status             string         `gorm:"column:status"`
	QuorumPct          float64        `gorm:"column:quorum_pct"`
	TotalEligibleUnits float64        `gorm:"column:total_eligible_units"`
	OrganizerID        string         `gorm:"column:organizer_id"`
	StartedAt          *time.Time     `gorm:"column:started_at"`
	EndedAt            *time.Time     `gorm:"column:ended_at"`
	CancelReason       string         `gorm:"column:cancel_reason"`
	CreatedAt          time.Time      `gorm:"column:created_at"`
	UpdatedAt          time.Time      `gorm:"column:updated_at"`
}

func (assemblyModel) TableName() string {
	return tableAssemblies
}

func encodeAgenda(items []entities.AgendaItem) (datatypes.JSON, error) {
	rows := make([]agendaItemModel, 0, len(items))
	for _, item := range items {
		rows = append(rows, agendaItemModel{
			Numeral:         item.Numeral,
			Topic:           item.Topic,
			DurationSeconds: int64(item.Duration / time.Second),
			Notes:           item.Notes,
			Options:         item.Options,
		})
	}
	raw, err := json.Marshal(rows)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func decodeAgenda(raw datatypes.JSON) ([]entities.AgendaItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rows []agendaItemModel
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	items := make([]entities.AgendaItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.AgendaItem{
			Numeral:  row.Numeral,
			Topic:    row.Topic,
			Duration: time.Duration(row.DurationSeconds) * time.Second,
			Notes:    row.Notes,
			Options:  row.Options,
		})
	}
	return items, nil
}

func assemblyModelFromEntity(assembly entities.Assembly) (assemblyModel, error) {
	agenda, err := encodeAgenda(assembly.Agenda)
	if err != nil {
		return assemblyModel{}, err
	}
	return assemblyModel{
		ID:                 assembly.AssemblyID,
		TenantKey:          assembly.TenantKey,
		Title:              assembly.Title,
		Type:               string(assembly.Type),
		ScheduledStart:     assembly.ScheduledStart.UTC(),
		Location:           assembly.Location,
		Agenda:             agenda,
		Status:             string(assembly.Status),
		QuorumPct:          assembly.QuorumPct,
		TotalEligibleUnits: assembly.TotalEligibleUnits,
		OrganizerID:        assembly.OrganizerID,
		StartedAt:          normalizeOptionalTime(assembly.StartedAt),
		EndedAt:            normalizeOptionalTime(assembly.EndedAt),
		CancelReason:       assembly.CancelReason,
		CreatedAt:          assembly.CreatedAt.UTC(),
		UpdatedAt:          assembly.UpdatedAt.UTC(),
	}, nil
}

func (m assemblyModel) toEntity() (entities.Assembly, error) {
	agenda, err := decodeAgenda(m.Agenda)
	if err != nil {
		return entities.Assembly{}, domainerrors.Unavailable("decode agenda", err)
	}
	return entities.Assembly{
		AssemblyID:         m.ID,
		TenantKey:          m.TenantKey,
		Title:              m.Title,
		Type:               entities.AssemblyType(m.Type),
		ScheduledStart:     m.ScheduledStart.UTC(),
		Location:           m.Location,
		Agenda:             agenda,
		Status:             entities.AssemblyStatus(m.Status),
		QuorumPct:          m.QuorumPct,
		TotalEligibleUnits: m.TotalEligibleUnits,
		OrganizerID:        m.OrganizerID,
		StartedAt:          normalizeOptionalTime(m.StartedAt),
		EndedAt:            normalizeOptionalTime(m.EndedAt),
		CancelReason:       m.CancelReason,
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}, nil
}

type voterModel struct {
	AssemblyID string  `gorm:"column:assembly_id;primaryKey"`
	ResidentID string  `gorm:"column:resident_id;primaryKey"`
	TenantKey  string  `gorm:"column:tenant_key"`
	UnitID     string  `gorm:"column:unit_id"`
	Weight     float64 `gorm:"column:weight"`
}

func (voterModel) TableName() string {
	return tableVoters
}

func voterModelFromEntity(voter entities.EligibleVoter) voterModel {
	return voterModel{
		AssemblyID: voter.AssemblyID,
		ResidentID: voter.ResidentID,
		TenantKey:  voter.TenantKey,
		UnitID:     voter.UnitID,
		Weight:     voter.Weight,
	}
}

func (m voterModel) toEntity() entities.EligibleVoter {
	return entities.EligibleVoter{
		AssemblyID: m.AssemblyID,
		TenantKey:  m.TenantKey,
		ResidentID: m.ResidentID,
		UnitID:     m.UnitID,
		Weight:     m.Weight,
	}
}

type attendanceModel struct {
	AssemblyID   string     `gorm:"column:assembly_id;primaryKey"`
	ResidentID   string     `gorm:"column:resident_id;primaryKey"`
	TenantKey    string     `gorm:"column:tenant_key"`
	DelegateName string     `gorm:"column:delegate_name"`
	Confirmed    bool       `gorm:"column:confirmed"`
	ConfirmedAt  time.Time  `gorm:"column:confirmed_at"`
	Verified     bool       `gorm:"column:verified"`
	VerifiedBy   string     `gorm:"column:verified_by"`
	VerifiedAt   *time.Time `gorm:"column:verified_at"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at"`
}

func (attendanceModel) TableName() string {
	return tableAttendance
}

func attendanceModelFromEntity(record entities.AttendanceRecord) attendanceModel {
	row := attendanceModel{
		AssemblyID:   record.AssemblyID,
		ResidentID:   record.ResidentID,
		TenantKey:    record.TenantKey,
		DelegateName: record.DelegateName,
		Confirmed:    record.Confirmed,
		ConfirmedAt:  record.ConfirmedAt.UTC(),
		Verified:     record.Verified,
		VerifiedBy:   record.VerifiedBy,
		VerifiedAt:   normalizeOptionalTime(record.VerifiedAt),
		CreatedAt:    record.CreatedAt.UTC(),
		UpdatedAt:    record.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = row.ConfirmedAt
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m attendanceModel) toEntity() entities.AttendanceRecord {
	return entities.AttendanceRecord{
		AssemblyID:   m.AssemblyID,
		TenantKey:    m.TenantKey,
		ResidentID:   m.ResidentID,
		DelegateName: m.DelegateName,
		Confirmed:    m.Confirmed,
		ConfirmedAt:  m.ConfirmedAt.UTC(),
		Verified:     m.Verified,
		VerifiedBy:   m.VerifiedBy,
		VerifiedAt:   normalizeOptionalTime(m.VerifiedAt),
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

type voteModel struct {
	ID            string    `gorm:"column:id;primaryKey"`
	AssemblyID    string    `gorm:"column:assembly_id"`
	TenantKey     string    `gorm:"column:tenant_key"`
	AgendaNumeral int       `gorm:"column:agenda_numeral"`
	ResidentID    string    `gorm:"column:resident_id"`
	Choice        string    `gorm:"column:choice"`
	Weight        float64   `gorm:"column:weight"`
	CastBy        string    `gorm:"column:cast_by"`
	CastAt        time.Time `gorm:"column:cast_at"`
}

func (voteModel) TableName() string {
	return tableVotes
}

func voteModelFromEntity(vote entities.Vote) voteModel {
	return voteModel{
		ID:            vote.VoteID,
		AssemblyID:    vote.AssemblyID,
		TenantKey:     vote.TenantKey,
		AgendaNumeral: vote.AgendaNumeral,
		ResidentID:    vote.ResidentID,
		Choice:        vote.Choice,
		Weight:        vote.Weight,
		CastBy:        vote.CastBy,
		CastAt:        vote.CastAt.UTC(),
	}
}

func (m voteModel) toEntity() entities.Vote {
	return entities.Vote{
		VoteID:        m.ID,
		AssemblyID:    m.AssemblyID,
		TenantKey:     m.TenantKey,
		AgendaNumeral: m.AgendaNumeral,
		ResidentID:    m.ResidentID,
		Choice:        m.Choice,
		Weight:        m.Weight,
		CastBy:        m.CastBy,
		CastAt:        m.CastAt.UTC(),
	}
}

type gateModel struct {
	AssemblyID     string    `gorm:"column:assembly_id;primaryKey"`
	AgendaNumeral  int       `gorm:"column:agenda_numeral;primaryKey"`
	TenantKey      string    `gorm:"column:tenant_key"`
	ConfirmedUnits float64   `gorm:"column:confirmed_units"`
	QuorumPct      float64   `gorm:"column:quorum_pct"`
	RequiredPct    float64   `gorm:"column:required_pct"`
	OpenedAt       time.Time `gorm:"column:opened_at"`
}

func (gateModel) TableName() string {
	return tableGates
}

func gateModelFromEntity(gate entities.ItemGate) gateModel {
	return gateModel{
		AssemblyID:     gate.AssemblyID,
		AgendaNumeral:  gate.AgendaNumeral,
		TenantKey:      gate.TenantKey,
		ConfirmedUnits: gate.ConfirmedUnits,
		QuorumPct:      gate.QuorumPct,
		RequiredPct:    gate.RequiredPct,
		OpenedAt:       gate.OpenedAt.UTC(),
	}
}

func (m gateModel) toEntity() entities.ItemGate {
	return entities.ItemGate{
		AssemblyID:     m.AssemblyID,
		TenantKey:      m.TenantKey,
		AgendaNumeral:  m.AgendaNumeral,
		ConfirmedUnits: m.ConfirmedUnits,
		QuorumPct:      m.QuorumPct,
		RequiredPct:    m.RequiredPct,
		OpenedAt:       m.OpenedAt.UTC(),
	}
}

type residentModel struct {
	ResidentID string  `gorm:"column:resident_id;primaryKey"`
	UnitID     string  `gorm:"column:unit_id"`
	Weight     float64 `gorm:"column:weight"`
	Active     bool    `gorm:"column:active"`
}

func (residentModel) TableName() string {
	return tableResidents
}

func toVoteEntities(rows []voteModel) []entities.Vote {
	items := make([]entities.Vote, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// isUndefinedTable flags a namespace whose provisioning never ran.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

var _ ports.Store = (*Repository)(nil)
