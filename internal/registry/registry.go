// =============================================================================
// Payment Command Converter - Responsible Party Registry
// =============================================================================
//
// The registry keeps the responsible parties (signers) in one JSON document,
// config.json, inside the data directory.
//
// PERSISTENCE PROTOCOL (every mutation):
//   1. If config.json exists, copy it to backups/config_backup_<ts>.json
//      (ts = yyyyMMdd_HHmmss) and keep only the newest backups
//   2. Bump ultimaAtualizacao and replace config.json atomically
//   3. Swap the in-memory document only after the write succeeded
//
// FIRST RUN:
//   A default document with one seeded responsible party is written without
//   a backup.
//
// UNREADABLE DOCUMENT:
//   A document that does not parse is replaced by the default one. The
//   constructor still succeeds; the event is logged at WARN, reported by
//   LoadWarning, and the discarded file survives as the newest backup.
//
// Records are soft-deleted: Remove clears "ativo" and ids are never reused.
//
// =============================================================================

package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/logger"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/validation"
	"github.com/ginjaninja78/comandos-pagamento-xml/pkg/utils"
)

// File layout inside the data directory.
const (
	ConfigFileName   = "config.json"
	BackupDirName    = "backups"
	backupPrefix     = "config_backup_"
	backupSuffix     = ".json"
	backupTimeLayout = "20060102_150405"
)

// DefaultMaxBackups is the number of backups kept after each save.
const DefaultMaxBackups = 10

// DocumentVersion is written into freshly created documents.
const DocumentVersion = "2.0"

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("responsible not found")

	// ErrDuplicateCPF is returned when another active record uses the CPF.
	ErrDuplicateCPF = errors.New("cpf already registered")

	// ErrInvalidCPF is returned when the CPF fails the check-digit rules.
	ErrInvalidCPF = errors.New("invalid cpf")

	// ErrInvalidResponsible is returned when required fields are blank.
	ErrInvalidResponsible = errors.New("invalid responsible")
)

// Options configures a Registry.
type Options struct {
	// Dir is the data directory holding config.json and backups/.
	Dir string

	// MaxBackups is the number of backups retained. Default: 10
	MaxBackups int

	// Now is the clock for timestamps and backup names. Default: time.Now
	Now func() time.Time
}

// Registry persists responsible parties. All methods are safe for concurrent
// use; each call holds the registry lock for its whole read-modify-write.
type Registry struct {
	mu          sync.Mutex
	path        string
	backupDir   string
	maxBackups  int
	now         func() time.Time
	doc         types.ConfigurationDocument
	loadWarning error
}

// =============================================================================
// CONSTRUCTION AND LOADING
// =============================================================================

// New opens the registry in opts.Dir, creating the directory, the backup
// directory and a default document as needed.
//
// RETURNS:
//   - The registry.
//   - An error if the directories cannot be created, the document cannot be
//     read, or the default document cannot be written.
func New(opts Options) (*Registry, error) {
	if strings.TrimSpace(opts.Dir) == "" {
		return nil, errors.New("registry directory is required")
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	r := &Registry{
		path:       filepath.Join(opts.Dir, ConfigFileName),
		backupDir:  filepath.Join(opts.Dir, BackupDirName),
		maxBackups: opts.MaxBackups,
		now:        opts.Now,
	}

	if err := os.MkdirAll(r.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create registry directories: %w", err)
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	return r, nil
}

// load reads the document or regenerates the default one.
func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Info("Creating default responsible registry", map[string]interface{}{"path": r.path})
		return r.save(r.defaultDocument())
	case err != nil:
		return fmt.Errorf("failed to read registry %s: %w", r.path, err)
	}

	doc, parseErr := parseDocument(data)
	if parseErr != nil {
		r.loadWarning = fmt.Errorf("registry document %s discarded: %w", r.path, parseErr)
		logger.Warn("Registry document could not be parsed, regenerating defaults", map[string]interface{}{
			"path":  r.path,
			"error": parseErr.Error(),
		})
		return r.save(r.defaultDocument())
	}

	for i := range doc.Responsaveis {
		doc.Responsaveis[i] = doc.Responsaveis[i].Normalized()
	}
	r.doc = doc

	logger.Debug("Responsible registry loaded", map[string]interface{}{
		"path":         r.path,
		"responsaveis": len(doc.Responsaveis),
	})
	return nil
}

func parseDocument(data []byte) (types.ConfigurationDocument, error) {
	var doc *types.ConfigurationDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.ConfigurationDocument{}, err
	}
	if doc == nil {
		return types.ConfigurationDocument{}, errors.New("document is null")
	}
	if doc.Responsaveis == nil {
		doc.Responsaveis = []types.Responsible{}
	}
	return *doc, nil
}

func (r *Registry) defaultDocument() types.ConfigurationDocument {
	now := r.now()
	return types.ConfigurationDocument{
		Versao:            DocumentVersion,
		UltimaAtualizacao: now,
		Responsaveis: []types.Responsible{
			{
				ID:           1,
				Nome:         "RESPONSÁVEL PADRÃO",
				CPF:          "00000000000",
				NIP:          "00000",
				Perfil:       "AGI",
				TipoPerfilOM: "IQM",
				CodPapem:     types.DefaultCodPapem,
				Ativo:        true,
				DataCadastro: &now,
			},
		},
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// ListActive returns copies of the active records in storage order.
func (r *Registry) ListActive() []types.Responsible {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]types.Responsible, 0, len(r.doc.Responsaveis))
	for _, rec := range r.doc.Responsaveis {
		if rec.Ativo {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// Get returns a copy of the active record with the id, or ErrNotFound.
func (r *Registry) Get(id int) (types.Responsible, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rec := range r.doc.Responsaveis {
		if rec.ID == id && rec.Ativo {
			return rec.Clone(), nil
		}
	}
	return types.Responsible{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// Configuration returns a deep copy of the whole document, inactive records
// included.
func (r *Registry) Configuration() types.ConfigurationDocument {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.doc.Clone()
}

// Path returns the location of config.json.
func (r *Registry) Path() string { return r.path }

// BackupDir returns the backup directory.
func (r *Registry) BackupDir() string { return r.backupDir }

// LoadWarning reports why the stored document was discarded at load time, or
// nil if it was read normally.
func (r *Registry) LoadWarning() error { return r.loadWarning }

// =============================================================================
// MUTATIONS
// =============================================================================

// Add stores a new active record.
//
// PROCESS:
//  1. Reject an invalid CPF (ErrInvalidCPF) or blank required fields
//  2. Normalize and default dataCadastro to now
//  3. Reject a CPF used by another active record (ErrDuplicateCPF)
//  4. Allocate id = max existing id + 1, persist
//
// RETURNS:
//   - The stored record.
func (r *Registry) Add(rec types.Responsible) (types.Responsible, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !validation.IsValidNationalID(rec.CPF) {
		return types.Responsible{}, ErrInvalidCPF
	}

	rec = rec.Normalized()
	if err := checkRequired(rec); err != nil {
		return types.Responsible{}, err
	}
	if rec.DataCadastro == nil {
		now := r.now()
		rec.DataCadastro = &now
	}
	if r.cpfInUse(rec.CPF, 0) {
		return types.Responsible{}, ErrDuplicateCPF
	}

	rec.ID = r.nextID()
	rec.Ativo = true

	next := r.doc.Clone()
	next.Responsaveis = append(next.Responsaveis, rec.Clone())
	if err := r.save(next); err != nil {
		return types.Responsible{}, err
	}

	logger.Info("Responsible added", map[string]interface{}{"id": rec.ID})
	return rec, nil
}

// Update replaces the record with the id.
//
// The id and the ativo flag are kept from storage; dataCadastro is kept when
// the incoming record has none.
//
// ERRORS:
//   - ErrNotFound if no record, active or not, has the id
//   - ErrInvalidCPF, ErrInvalidResponsible for bad input
//   - ErrDuplicateCPF if another active record uses the CPF
func (r *Registry) Update(id int, rec types.Responsible) (types.Responsible, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.indexOf(id)
	if index < 0 {
		return types.Responsible{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	if !validation.IsValidNationalID(rec.CPF) {
		return types.Responsible{}, ErrInvalidCPF
	}

	rec = rec.Normalized()
	if err := checkRequired(rec); err != nil {
		return types.Responsible{}, err
	}
	if r.cpfInUse(rec.CPF, id) {
		return types.Responsible{}, ErrDuplicateCPF
	}

	stored := r.doc.Responsaveis[index]
	rec.ID = id
	rec.Ativo = stored.Ativo
	if rec.DataCadastro == nil {
		if stored.DataCadastro != nil {
			ts := *stored.DataCadastro
			rec.DataCadastro = &ts
		} else {
			now := r.now()
			rec.DataCadastro = &now
		}
	}

	next := r.doc.Clone()
	next.Responsaveis[index] = rec.Clone()
	if err := r.save(next); err != nil {
		return types.Responsible{}, err
	}

	logger.Info("Responsible updated", map[string]interface{}{"id": id})
	return rec, nil
}

// Remove soft-deletes the record with the id. Removing an already inactive
// record succeeds and rewrites the document.
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	index := r.indexOf(id)
	if index < 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}

	next := r.doc.Clone()
	next.Responsaveis[index].Ativo = false
	if err := r.save(next); err != nil {
		return err
	}

	logger.Info("Responsible removed", map[string]interface{}{"id": id})
	return nil
}

func checkRequired(rec types.Responsible) error {
	var missing []string
	if rec.Nome == "" {
		missing = append(missing, "nome")
	}
	if rec.Perfil == "" {
		missing = append(missing, "perfil")
	}
	if rec.TipoPerfilOM == "" {
		missing = append(missing, "tipo_perfil_om")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s required", ErrInvalidResponsible, strings.Join(missing, ", "))
	}
	return nil
}

func (r *Registry) indexOf(id int) int {
	for i, rec := range r.doc.Responsaveis {
		if rec.ID == id {
			return i
		}
	}
	return -1
}

// cpfInUse reports whether an active record other than excludeID has cpf.
func (r *Registry) cpfInUse(cpf string, excludeID int) bool {
	for _, rec := range r.doc.Responsaveis {
		if rec.Ativo && rec.ID != excludeID && rec.CPF == cpf {
			return true
		}
	}
	return false
}

func (r *Registry) nextID() int {
	maxID := 0
	for _, rec := range r.doc.Responsaveis {
		if rec.ID > maxID {
			maxID = rec.ID
		}
	}
	return maxID + 1
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// save backs up the current file, writes doc and makes it the live document.
func (r *Registry) save(doc types.ConfigurationDocument) error {
	if err := r.createBackup(); err != nil {
		return err
	}

	doc.UltimaAtualizacao = r.now()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode registry: %w", err)
	}

	if err := utils.WriteFileAtomic(r.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}

	r.doc = doc
	return nil
}

// createBackup copies the existing document and prunes old backups. Nothing
// happens on first run.
func (r *Registry) createBackup() error {
	if !utils.FileExists(r.path) {
		return nil
	}

	name := backupPrefix + r.now().Format(backupTimeLayout) + backupSuffix
	backupPath := filepath.Join(r.backupDir, name)
	if err := utils.CopyFile(r.path, backupPath); err != nil {
		return fmt.Errorf("failed to create registry backup: %w", err)
	}

	return r.pruneBackups()
}

type backupFile struct {
	path    string
	modTime time.Time
}

// pruneBackups deletes the oldest backups beyond maxBackups. Age is the file
// modification time with the name as tie-breaker.
func (r *Registry) pruneBackups() error {
	backups, err := r.listBackups()
	if err != nil {
		return err
	}

	for len(backups) > r.maxBackups {
		oldest := backups[0]
		if err := os.Remove(oldest.path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", oldest.path, err)
		}
		logger.Debug("Old registry backup removed", map[string]interface{}{"path": oldest.path})
		backups = backups[1:]
	}

	return nil
}

// listBackups returns the backups oldest first.
func (r *Registry) listBackups() ([]backupFile, error) {
	matches, err := filepath.Glob(filepath.Join(r.backupDir, backupPrefix+"*"+backupSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	backups := make([]backupFile, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("failed to stat backup %s: %w", m, err)
		}
		backups = append(backups, backupFile{path: m, modTime: info.ModTime()})
	}

	sort.Slice(backups, func(i, j int) bool {
		if backups[i].modTime.Equal(backups[j].modTime) {
			return backups[i].path < backups[j].path
		}
		return backups[i].modTime.Before(backups[j].modTime)
	})

	return backups, nil
}

// Backups lists the backup files, oldest first.
func (r *Registry) Backups() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	backups, err := r.listBackups()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(backups))
	for i, b := range backups {
		paths[i] = b.path
	}
	return paths, nil
}
