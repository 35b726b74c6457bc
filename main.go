package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gotraverse/classify"
	"gotraverse/decision"
	"gotraverse/nat"
	"gotraverse/technique"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Config lists the techniques to register, in order. Without a config file the built in ones are used.
type Config struct {
	Techniques []technique.Definition `yaml:"techniques"`
}

func main() {
	app := &cli.App{
		Name:  "gotraverse",
		Usage: "Pick NAT traversal techniques for a pair of NAT behaviours",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "info", Usage: "log level"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "technique config location, built in techniques if empty"},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			{
				Name:      "select",
				Usage:     "Print the techniques to try for a situation, most preferred first",
				ArgsUsage: "client-mapping,client-filtering,service-mapping,service-filtering",
				Action:    selectTechniques,
			},
			{
				Name:   "table",
				Usage:  "Print the decision table built from the configured techniques",
				Action: printTable,
			},
			{
				Name:      "classify",
				Usage:     "Derive NAT behaviour from a pcap of STUN binding traffic",
				ArgsUsage: "capture.pcap",
				Action:    classifyCapture,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Failed")
	}
}

func setupLogging(c *cli.Context) error {
	loglvl, err := zerolog.ParseLevel(c.String("log-level"))
	if err != nil {
		return fmt.Errorf("failed to parse log level %q, try debug: %w", c.String("log-level"), err)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(loglvl).With().Timestamp().Logger().With().Caller().Logger()
	return nil
}

func loadRegistry(configStr string) (*technique.Registry, error) {
	if configStr == "" {
		log.Debug().Msg("No config, using built in techniques")
		return technique.DefaultRegistry(), nil
	}
	f, err := os.Open(configStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open config %s: %w", configStr, err)
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config '%s': %w", configStr, err)
	}
	log.Debug().Msgf("Config: %+v", cfg)
	// rulesFile entries are relative to the config file
	return technique.RegistryFromDefinitions(cfg.Techniques, os.DirFS(filepath.Dir(configStr)))
}

func selectTechniques(c *cli.Context) error {
	situation := nat.UnknownSituation
	if c.Args().Present() {
		var err error
		situation, err = nat.ParseSituation(c.Args().First())
		if err != nil {
			return err
		}
	}

	reg, err := loadRegistry(c.String("config"))
	if err != nil {
		return err
	}
	strategy := decision.NewStrategy(reg, decision.Build(reg))

	_, fallback := strategy.Candidates(situation)
	if fallback {
		log.Info().Msgf("No technique declares %s, trying all of them", situation)
	}
	for i, t := range strategy.TechniquesFor(situation) {
		fmt.Printf("%d. %s\n", i+1, t.Metadata())
	}
	return nil
}

func printTable(c *cli.Context) error {
	reg, err := loadRegistry(c.String("config"))
	if err != nil {
		return err
	}
	table := decision.Build(reg)
	for _, s := range table.Situations() {
		fmt.Printf("%s\t%v\n", s, technique.Names(table.Lookup(s)))
	}
	log.Info().Msgf("%d techniques, %d situations", reg.Len(), table.Len())
	return nil
}

func classifyCapture(c *cli.Context) error {
	if !c.Args().Present() {
		return fmt.Errorf("need a pcap file")
	}
	f, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer f.Close()

	result, err := classify.ReadPcap(f)
	if err != nil {
		return err
	}
	analysis := result.Analyze()
	fmt.Println(result)
	fmt.Println(analysis.Narrative())
	fmt.Printf("\nBehaviour: %s\n", analysis.Behavior())
	return nil
}
