package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"webapp_installer/installer/config"
	"webapp_installer/installer/payload"
)

type packOptions struct {
	stub       string
	payloadDir string
	configPath string
	output     string
	version    string
}

func main() {
	if err := newPackCmd().Execute(); err != nil {
		logrus.WithError(err).Error("pack failed")
		os.Exit(1)
	}
}

func newPackCmd() *cobra.Command {
	var o packOptions
	cmd := &cobra.Command{
		Use:          "pack",
		Short:        "Build a self-extracting setup from the installer stub and an application directory",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return pack(o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.stub, "stub", "./stub.exe", "installer stub executable")
	f.StringVar(&o.payloadDir, "payload", "./dist", "application directory to embed")
	f.StringVar(&o.configPath, "config", "./installer.yaml", "product configuration embedded as meta.yaml")
	f.StringVarP(&o.output, "out", "o", "", "output setup path (default <product>_setup_v<version>.exe)")
	f.StringVar(&o.version, "version", "", "override product.version")
	return cmd
}

func pack(o packOptions) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if o.version != "" {
		cfg.Product.Version = o.version
		if cfg, err = config.Finish(cfg); err != nil {
			return err
		}
	}
	meta, err := metaFor(cfg)
	if err != nil {
		return err
	}

	out := o.output
	if out == "" {
		out = fmt.Sprintf("%s_setup_v%s.exe", cfg.Product.Name, cfg.Product.Version)
	}
	if err := payload.Build(o.stub, o.payloadDir, out, meta); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"product": cfg.Product.Name,
		"version": cfg.Product.Version,
		"out":     out,
	}).Info("setup written")
	return nil
}

// metaFor 打包机器上的路径不写入安装包。
func metaFor(cfg *config.Config) ([]byte, error) {
	m := *cfg
	m.Install.SourceDir = ""
	m.Log.Dir = ""
	return yaml.Marshal(&m)
}
