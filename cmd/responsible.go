// =============================================================================
// Payment Command Converter - Responsible Commands
// =============================================================================
//
// This file defines the 'responsible' command group, which manages the
// registry of responsible parties stored in <data_dir>/config.json.
//
// COMMAND USAGE:
//   converter responsible list [--json]
//   converter responsible show <id>
//   converter responsible add --nome N --cpf C --nip X --perfil P --tipo-perfil-om T [--cod-papem 094]
//   converter responsible update <id> [--nome N] [--cpf C] ...
//   converter responsible remove <id>
//
// Every change backs up the previous file under <data_dir>/backups.
//
// =============================================================================

package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/ginjaninja78/comandos-pagamento-xml/internal/registry"
	"github.com/ginjaninja78/comandos-pagamento-xml/internal/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// responsibleFlags holds the field flags shared by add and update.
type responsibleFlags struct {
	nome, cpf, nip, perfil, tipoPerfilOM, codPapem string
}

func (f *responsibleFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.nome, "nome", "", "Full name")
	fs.StringVar(&f.cpf, "cpf", "", "CPF (punctuation allowed)")
	fs.StringVar(&f.nip, "nip", "", "NIP")
	fs.StringVar(&f.perfil, "perfil", "", "Profile")
	fs.StringVar(&f.tipoPerfilOM, "tipo-perfil-om", "", "Profile type")
	fs.StringVar(&f.codPapem, "cod-papem", "", "Classification code (default 094)")
}

// apply copies the flags the user set onto rec.
func (f *responsibleFlags) apply(fs *pflag.FlagSet, rec *types.Responsible) {
	set := map[string]*string{
		"nome":           &rec.Nome,
		"cpf":            &rec.CPF,
		"nip":            &rec.NIP,
		"perfil":         &rec.Perfil,
		"tipo-perfil-om": &rec.TipoPerfilOM,
		"cod-papem":      &rec.CodPapem,
	}
	values := map[string]string{
		"nome":           f.nome,
		"cpf":            f.cpf,
		"nip":            f.nip,
		"perfil":         f.perfil,
		"tipo-perfil-om": f.tipoPerfilOM,
		"cod-papem":      f.codPapem,
	}
	for name, target := range set {
		if fs.Changed(name) {
			*target = values[name]
		}
	}
}

var (
	addFlags    responsibleFlags
	updateFlags responsibleFlags
	listJSON    bool
)

var responsibleCmd = &cobra.Command{
	Use:     "responsible",
	Aliases: []string{"responsaveis"},
	Short:   "Manage responsible parties",
}

var responsibleListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active responsible parties",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}

		active := reg.ListActive()
		if listJSON {
			return printJSON(active)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNOME\tCPF\tNIP\tPERFIL\tTIPO\tPAPEM")
		for _, r := range active {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.Nome, r.CPF, r.NIP, r.Perfil, r.TipoPerfilOM, r.CodPapem)
		}
		return w.Flush()
	},
}

var responsibleShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one active responsible party",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		rec, err := reg.Get(id)
		if err != nil {
			return err
		}
		return printJSON(rec)
	},
}

var responsibleAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a responsible party",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openRegistry()
		if err != nil {
			return err
		}

		var rec types.Responsible
		addFlags.apply(cmd.Flags(), &rec)

		added, err := reg.Add(rec)
		if err != nil {
			return fmt.Errorf("failed to add responsible: %w", err)
		}
		fmt.Printf("Responsible %d added: %s\n", added.ID, added.Nome)
		return nil
	},
}

var responsibleUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a responsible party; omitted fields keep their value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		reg, err := openRegistry()
		if err != nil {
			return err
		}

		rec, found := findAny(reg, id)
		if !found {
			return fmt.Errorf("%w: id %d", registry.ErrNotFound, id)
		}
		updateFlags.apply(cmd.Flags(), &rec)

		updated, err := reg.Update(id, rec)
		if err != nil {
			return fmt.Errorf("failed to update responsible: %w", err)
		}
		fmt.Printf("Responsible %d updated: %s\n", updated.ID, updated.Nome)
		return nil
	},
}

var responsibleRemoveCmd = &cobra.Command{
	Use:   "remove <id>",
	Short: "Deactivate a responsible party",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		reg, err := openRegistry()
		if err != nil {
			return err
		}
		if err := reg.Remove(id); err != nil {
			return fmt.Errorf("failed to remove responsible: %w", err)
		}
		fmt.Printf("Responsible %d removed\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(responsibleCmd)
	responsibleCmd.AddCommand(responsibleListCmd, responsibleShowCmd, responsibleAddCmd, responsibleUpdateCmd, responsibleRemoveCmd)

	responsibleListCmd.Flags().BoolVar(&listJSON, "json", false, "Print as JSON")

	addFlags.register(responsibleAddCmd.Flags())
	for _, name := range []string{"nome", "cpf", "perfil", "tipo-perfil-om"} {
		responsibleAddCmd.MarkFlagRequired(name)
	}

	updateFlags.register(responsibleUpdateCmd.Flags())
}

// findAny returns the record with the id, active or not.
func findAny(reg *registry.Registry, id int) (types.Responsible, bool) {
	for _, r := range reg.Configuration().Responsaveis {
		if r.ID == id {
			return r, true
		}
	}
	return types.Responsible{}, false
}

func parseID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
