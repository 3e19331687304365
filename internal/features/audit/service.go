package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	common_models "estate-crm/internal/common/models"
	"estate-crm/internal/registry"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type AuditService interface {
	RecordCreate(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, record map[string]interface{})
	RecordUpdate(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, before, after map[string]interface{})
	RecordDelete(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, record map[string]interface{})
	Event(ctx context.Context, moduleName string, action common_models.AuditAction, description string, severity common_models.Severity)

	List(ctx context.Context, principal *common_models.Principal, q Query) ([]AuditEntry, int64, error)
	Get(ctx context.Context, principal *common_models.Principal, id string) (*AuditEntry, []AuditEntry, error)
	ExportCSV(ctx context.Context, principal *common_models.Principal, q Query, w io.Writer) error
	ExportXLSX(ctx context.Context, principal *common_models.Principal, q Query) (*excelize.File, error)
	Purge(ctx context.Context, olderThanDays int) (int64, error)
}

type AuditServiceImpl struct {
	AuditRepo AuditRepository
	Log       *zap.Logger
}

func NewAuditService(auditRepo AuditRepository, log *zap.Logger) AuditService {
	return &AuditServiceImpl{
		AuditRepo: auditRepo,
		Log:       log,
	}
}

// RecordCreate emits the single `create` entry for a new record.
func (s *AuditServiceImpl) RecordCreate(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, record map[string]interface{}) {
	entry := s.baseEntry(ctx, desc, targetID, time.Now())
	entry.Action = common_models.AuditActionCreate
	entry.Severity = common_models.SeverityLow
	entry.TargetDisplayBackup = desc.Display(record)
	entry.Description = fmt.Sprintf("Created %s %q", desc.Model, entry.TargetDisplayBackup)
	s.persist(ctx, []AuditEntry{entry})
}

// RecordUpdate diffs the tracked fields in their declared order and emits
// one entry per change plus a summary entry. Timestamps within the batch
// are strictly increasing so readers see a stable ordering.
func (s *AuditServiceImpl) RecordUpdate(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, before, after map[string]interface{}) {
	base := time.Now()
	display := desc.Display(after)
	if display == "" {
		display = desc.Display(before)
	}

	var entries []AuditEntry
	maxSeverity := common_models.SeverityLow
	var changedFields []string

	for _, field := range desc.TrackedFields {
		oldValue := serialize(before[field])
		newValue := serialize(after[field])
		if oldValue == newValue {
			continue
		}

		entry := s.baseEntry(ctx, desc, targetID, base.Add(time.Duration(len(entries))*time.Microsecond))
		entry.TargetDisplayBackup = display
		entry.Field = field
		entry.OldValue = oldValue
		entry.NewValue = newValue
		entry.Action, entry.Severity = classify(field, newValue)
		entry.Description = fmt.Sprintf("%s %q: %s changed from %q to %q", desc.Model, display, field, oldValue, newValue)

		if severityRank(entry.Severity) > severityRank(maxSeverity) {
			maxSeverity = entry.Severity
		}
		changedFields = append(changedFields, field)
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return
	}

	summary := s.baseEntry(ctx, desc, targetID, base.Add(time.Duration(len(entries))*time.Microsecond))
	summary.TargetDisplayBackup = display
	summary.Action = common_models.AuditActionUpdate
	summary.Severity = maxSeverity
	summary.Description = fmt.Sprintf("Updated %s %q (%d fields: %s)", desc.Model, display, len(changedFields), strings.Join(changedFields, ", "))
	entries = append(entries, summary)

	s.persist(ctx, entries)
}

// RecordDelete emits the single `delete` entry. The target reference is
// nulled; the backups are all that remain of the record's identity.
func (s *AuditServiceImpl) RecordDelete(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, record map[string]interface{}) {
	entry := s.baseEntry(ctx, desc, targetID, time.Now())
	entry.TargetID = nil
	entry.Action = common_models.AuditActionDelete
	entry.Severity = common_models.SeverityCritical
	entry.TargetDisplayBackup = desc.Display(record)
	entry.Description = fmt.Sprintf("Deleted %s %q", desc.Model, entry.TargetDisplayBackup)
	s.persist(ctx, []AuditEntry{entry})
}

// Event records a non-mutation occurrence such as a login or a purge.
func (s *AuditServiceImpl) Event(ctx context.Context, moduleName string, action common_models.AuditAction, description string, severity common_models.Severity) {
	entry := AuditEntry{
		ModuleName:  moduleName,
		Action:      action,
		Description: description,
		Severity:    severity,
		Timestamp:   time.Now(),
	}
	s.attachContext(ctx, &entry)
	s.persist(ctx, []AuditEntry{entry})
}

func (s *AuditServiceImpl) baseEntry(ctx context.Context, desc *registry.Descriptor, targetID primitive.ObjectID, at time.Time) AuditEntry {
	id := targetID
	entry := AuditEntry{
		ModuleName:     desc.Module,
		ModelName:      desc.Model,
		TargetID:       &id,
		TargetIDBackup: targetID.Hex(),
		Timestamp:      at,
	}
	s.attachContext(ctx, &entry)
	return entry
}

// attachContext pulls the acting principal and request metadata from the
// context. Outside a request both are absent and the source marks the entry
// as produced by a background job.
func (s *AuditServiceImpl) attachContext(ctx context.Context, entry *AuditEntry) {
	if principal, ok := ctx.Value(common_models.PrincipalKey).(*common_models.Principal); ok && principal != nil {
		if oid, err := primitive.ObjectIDFromHex(principal.UserID); err == nil {
			entry.ActorID = &oid
		}
		entry.ActorDisplayBackup = principal.Name
	}
	if meta, ok := ctx.Value(common_models.RequestMetaKey).(common_models.RequestMeta); ok {
		entry.IP = meta.IP
		entry.UserAgent = meta.UserAgent
		entry.SessionID = meta.SessionID
		entry.Source = meta.Source
	}
	if entry.Source == "" {
		entry.Source = "job"
	}
}

// persist writes the batch, swallowing failures: a broken audit sink must
// never abort the business mutation it describes.
func (s *AuditServiceImpl) persist(ctx context.Context, entries []AuditEntry) {
	if err := s.AuditRepo.Insert(ctx, entries); err != nil {
		s.Log.Error("failed to persist audit entries",
			zap.Int("count", len(entries)),
			zap.Error(err))
	}
}

func classify(field, newValue string) (common_models.AuditAction, common_models.Severity) {
	switch field {
	case "status":
		if newValue == "Converted" {
			return common_models.AuditActionConversion, common_models.SeverityCritical
		}
		return common_models.AuditActionStatusChange, common_models.SeverityHigh
	case "assigned_to":
		return common_models.AuditActionAssignmentChange, common_models.SeverityHigh
	case "priority":
		return common_models.AuditActionPriorityChange, common_models.SeverityMedium
	case "temperature":
		return common_models.AuditActionTemperatureChange, common_models.SeverityMedium
	case "score":
		return common_models.AuditActionScoreChange, common_models.SeverityMedium
	case "notes":
		return common_models.AuditActionUpdate, common_models.SeverityLow
	}
	return common_models.AuditActionUpdate, common_models.SeverityMedium
}

func severityRank(s common_models.Severity) int {
	switch s {
	case common_models.SeverityLow:
		return 1
	case common_models.SeverityMedium:
		return 2
	case common_models.SeverityHigh:
		return 3
	case common_models.SeverityCritical:
		return 4
	}
	return 0
}

// restrict narrows the query to the principal's own entries unless the
// principal is privileged. Privilege here means edit access on the audit
// module or the superuser flag.
func restrict(principal *common_models.Principal, q Query) Query {
	if principal == nil {
		q.ActorID = primitive.NilObjectID.Hex()
		return q
	}
	if principal.Superuser || principal.HasLevel("audit", common_models.LevelEdit) {
		return q
	}
	q.ActorID = principal.UserID
	return q
}

func (s *AuditServiceImpl) List(ctx context.Context, principal *common_models.Principal, q Query) ([]AuditEntry, int64, error) {
	return s.AuditRepo.List(ctx, restrict(principal, q))
}

// Get returns the entry plus up to 10 other entries for the same target.
func (s *AuditServiceImpl) Get(ctx context.Context, principal *common_models.Principal, id string) (*AuditEntry, []AuditEntry, error) {
	entry, err := s.AuditRepo.FindByID(ctx, id)
	if err != nil || entry == nil {
		return nil, nil, err
	}
	if restricted := restrict(principal, Query{}); restricted.ActorID != "" {
		if entry.ActorID == nil || entry.ActorID.Hex() != restricted.ActorID {
			return nil, nil, nil
		}
	}

	var related []AuditEntry
	if entry.TargetIDBackup != "" {
		all, err := s.AuditRepo.FindRelated(ctx, entry.TargetIDBackup, 11)
		if err == nil {
			for _, r := range all {
				if r.ID != entry.ID && len(related) < 10 {
					related = append(related, r)
				}
			}
		}
	}
	return entry, related, nil
}

var exportColumns = []string{"timestamp", "action", "target", "principal", "description", "field", "old", "new", "severity", "ip"}

func exportRow(e AuditEntry) []string {
	return []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		string(e.Action),
		e.TargetDisplayBackup,
		e.ActorDisplayBackup,
		e.Description,
		e.Field,
		e.OldValue,
		e.NewValue,
		string(e.Severity),
		e.IP,
	}
}

// ExportCSV streams the filtered trail page by page so exports of any size
// run in constant memory.
func (s *AuditServiceImpl) ExportCSV(ctx context.Context, principal *common_models.Principal, q Query, w io.Writer) error {
	q = restrict(principal, q)
	q.PageSize = 200
	q.Page = 1

	writer := csv.NewWriter(w)
	if err := writer.Write(exportColumns); err != nil {
		return err
	}

	for {
		entries, total, err := s.AuditRepo.List(ctx, q)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := writer.Write(exportRow(e)); err != nil {
				return err
			}
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return err
		}
		if int64(q.Skip()+len(entries)) >= total || len(entries) == 0 {
			return nil
		}
		q.Page++
	}
}

// ExportXLSX renders the filtered trail as a spreadsheet.
func (s *AuditServiceImpl) ExportXLSX(ctx context.Context, principal *common_models.Principal, q Query) (*excelize.File, error) {
	q = restrict(principal, q)
	q.PageSize = 200
	q.Page = 1

	f := excelize.NewFile()
	const sheet = "Audit Trail"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for col, name := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheet, cell, name)
	}

	row := 2
	for {
		entries, total, err := s.AuditRepo.List(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			for col, value := range exportRow(e) {
				cell, _ := excelize.CoordinatesToCellName(col+1, row)
				_ = f.SetCellValue(sheet, cell, value)
			}
			row++
		}
		if int64(q.Skip()+len(entries)) >= total || len(entries) == 0 {
			return f, nil
		}
		q.Page++
	}
}

// Purge deletes entries older than the retention window and records the
// purge itself as a critical entry.
func (s *AuditServiceImpl) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	if olderThanDays < 1 {
		return 0, fmt.Errorf("purge window must be at least 1 day")
	}
	cutoff := time.Now().AddDate(0, 0, -olderThanDays)
	deleted, err := s.AuditRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.Event(ctx, "audit", common_models.AuditActionDelete,
			fmt.Sprintf("Purged %d audit entries older than %d days", deleted, olderThanDays),
			common_models.SeverityCritical)
	}
	return deleted, nil
}

// serialize flattens a field value to its audit string. Lookup values are
// stored as nested maps; their display name stands in for the whole map.
func serialize(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case map[string]interface{}:
		if name, ok := value["name"].(string); ok {
			return name
		}
	case bson.M:
		if name, ok := value["name"].(string); ok {
			return name
		}
	}
	return fmt.Sprintf("%v", v)
}
