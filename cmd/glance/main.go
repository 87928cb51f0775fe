package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vmcloud/glance/internal/app"
	"github.com/vmcloud/glance/internal/config"
	"github.com/vmcloud/glance/internal/encryption"
	"github.com/vmcloud/glance/internal/model"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a GlanceApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "AddImage", "FetchImage").
func newApp(operation string) (*app.GlanceApp, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewGlanceApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// parseImageID converts a CLI argument to an image id.
func parseImageID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid image id %q", arg)
	}
	return id, nil
}

// imageValuesFromFlags builds an ImageValues patch from the metadata
// flags that were explicitly set on the command.
func imageValuesFromFlags(cmd *cobra.Command) (*model.ImageValues, error) {
	values := &model.ImageValues{}
	flags := cmd.Flags()

	if flags.Changed("id") {
		id, _ := flags.GetInt64("id")
		values.ID = &id
	}
	if flags.Changed("name") {
		name, _ := flags.GetString("name")
		values.Name = &name
	}
	if flags.Changed("type") {
		typ, _ := flags.GetString("type")
		values.Type = &typ
	}
	if flags.Changed("public") {
		public, _ := flags.GetBool("public")
		values.IsPublic = &public
	}
	if flags.Changed("status") {
		s, _ := flags.GetString("status")
		status := model.Status(s)
		values.Status = &status
	}
	if flags.Changed("location") {
		location, _ := flags.GetString("location")
		values.Location = &location
	}
	if flags.Changed("size") {
		size, _ := flags.GetInt64("size")
		values.Size = &size
	}
	if flags.Changed("property") {
		pairs, _ := flags.GetStringArray("property")
		props := make(map[string]string, len(pairs))
		for _, pair := range pairs {
			key, value, ok := strings.Cut(pair, "=")
			if !ok || key == "" {
				return nil, fmt.Errorf("invalid property %q (expected KEY=VALUE)", pair)
			}
			props[key] = value
		}
		values.Properties = props
	}

	return values, nil
}

// addImageFlags registers the metadata flags shared by add and update.
func addImageFlags(cmd *cobra.Command) {
	cmd.Flags().String("name", "", "Image name")
	cmd.Flags().String("type", "", "Image type (e.g. kernel, ramdisk, machine)")
	cmd.Flags().Bool("public", false, "Mark the image public")
	cmd.Flags().String("status", "", "Image status")
	cmd.Flags().String("location", "", "Store locator for already-stored data")
	cmd.Flags().Int64("size", 0, "Image data size in bytes")
	cmd.Flags().StringArray("property", nil, "Image property as KEY=VALUE (repeatable)")
}

func printImage(img *model.Image) {
	visibility := "private"
	if img.IsPublic {
		visibility = "public"
	}
	fmt.Printf("ID:       %d\n", img.ID)
	fmt.Printf("Name:     %s\n", img.Name)
	fmt.Printf("Status:   %s\n", img.Status)
	fmt.Printf("Type:     %s\n", img.Type)
	fmt.Printf("Access:   %s\n", visibility)
	fmt.Printf("Size:     %d\n", img.Size)
	fmt.Printf("Location: %s\n", img.Location)
	fmt.Printf("Created:  %s\n", img.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Updated:  %s\n", img.UpdatedAt.Format("2006-01-02 15:04:05"))
	if len(img.Properties) > 0 {
		fmt.Println("Properties:")
		for _, p := range img.Properties {
			fmt.Printf("  %s = %s\n", p.Key, p.Value)
		}
	}
}

var rootCmd = &cobra.Command{
	Use:   "glance",
	Short: "Image storage service",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Create config with defaults
		cfg := config.NewConfig(defaults["base_dir"])

		if encrypt {
			cfg.Encryption.Type = "age"
		}

		// Initialize config file
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		if encrypt {
			enc := encryption.NewAgeEncryptor(cfg.Encryption.PublicKeyPath, cfg.Encryption.PrivateKeyPath)
			if err := enc.Setup(); err != nil {
				return fmt.Errorf("failed to generate encryption keys: %w", err)
			}
			fmt.Printf("Encryption keys written under %s\n", cfg.Encryption.PublicKeyPath)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		// Get application defaults
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Read config
		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		// Display config
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Registry:      %s\n", cfg.Registry.Type)
		fmt.Printf("Default Store: %s\n", cfg.DefaultStore)
		for _, sc := range cfg.Stores {
			fmt.Printf("Store:         %s\n", sc.Type)
		}
		fmt.Printf("Encryption:    %s\n", cfg.Encryption.Type)
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add [FILE]",
	Short: "Add an image",
	Long: `Add an image to the registry. With a FILE argument its bytes are
streamed to the default store; without one only metadata is registered
(use --location to reference data already in a store).`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := imageValuesFromFlags(cmd)
		if err != nil {
			return err
		}

		dataPath := ""
		if len(args) > 0 {
			dataPath = args[0]
		}

		a, err := newApp("AddImage")
		if err != nil {
			return err
		}
		defer a.Close()

		img, err := a.AddImage(cmd.Context(), values, dataPath)
		if err != nil {
			return fmt.Errorf("adding image: %w", err)
		}

		fmt.Printf("Added image %d (%s)\n", img.ID, img.Status)
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List images",
	RunE: func(cmd *cobra.Command, args []string) error {
		private, _ := cmd.Flags().GetBool("private")

		a, err := newApp("ListImages")
		if err != nil {
			return err
		}
		defer a.Close()

		images, err := a.ListImages(cmd.Context(), !private)
		if err != nil {
			return err
		}

		if len(images) == 0 {
			fmt.Println("No images found.")
			return nil
		}

		for _, img := range images {
			fmt.Printf("%-6d  %-8s  %-10s  %10d  %s\n",
				img.ID, img.Status, img.Type, img.Size, img.Name)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show image metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseImageID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("GetImage")
		if err != nil {
			return err
		}
		defer a.Close()

		img, err := a.GetImage(cmd.Context(), id)
		if err != nil {
			return err
		}

		printImage(img)
		return nil
	},
}

// fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch ID",
	Short: "Fetch image data",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		id, err := parseImageID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("FetchImage")
		if err != nil {
			return err
		}
		defer a.Close()

		w := os.Stdout
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			w = f
		}

		_, n, err := a.FetchImage(cmd.Context(), id, w)
		if err != nil {
			return err
		}

		if output != "" {
			fmt.Printf("Wrote %d byte(s) to %s\n", n, output)
		}
		return nil
	},
}

// update command
var updateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Update image metadata",
	Long: `Update image metadata. Only the flags given are changed; --property
replaces the whole property set with the given pairs.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseImageID(args[0])
		if err != nil {
			return err
		}

		values, err := imageValuesFromFlags(cmd)
		if err != nil {
			return err
		}

		a, err := newApp("UpdateImage")
		if err != nil {
			return err
		}
		defer a.Close()

		img, err := a.UpdateImage(cmd.Context(), id, values)
		if err != nil {
			return err
		}

		fmt.Printf("Updated image %d\n", img.ID)
		return nil
	},
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseImageID(args[0])
		if err != nil {
			return err
		}

		a, err := newApp("DeleteImage")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.DeleteImage(cmd.Context(), id); err != nil {
			return err
		}

		fmt.Printf("Deleted image %d\n", id)
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("encrypt", false, "Generate age keys and encrypt filesystem store data")
	configCmd.AddCommand(configListCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(addCmd)
	addImageFlags(addCmd)
	addCmd.Flags().Int64("id", 0, "Explicit image id")
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("private", false, "List private images instead of public")
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(fetchCmd)
	fetchCmd.Flags().StringP("output", "o", "", "Write data to file instead of stdout")
	rootCmd.AddCommand(updateCmd)
	addImageFlags(updateCmd)
	rootCmd.AddCommand(deleteCmd)
}
