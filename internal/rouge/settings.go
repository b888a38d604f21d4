package rouge

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/xen-troops/rouge/internal/gpt"
	"github.com/xen-troops/rouge/internal/tools"
)

// Settings holds the engine tunables. The layout constants are deliberate
// safety margins rather than protocol requirements, so they are adjustable
// through the configuration file or ROUGE_* environment variables.
type Settings struct {
	// Alignment is the partition start alignment in bytes.
	Alignment int64 `mapstructure:"alignment"`
	// GPTReserve is the space kept after the last partition for the
	// secondary GPT copy.
	GPTReserve int64 `mapstructure:"gpt_reserve"`
	// Tools names the external programs to invoke.
	Tools tools.Toolchain `mapstructure:"tools"`
}

// LoadSettings loads the engine settings using Viper: defaults, then an
// optional rouge-config file, then environment overrides.
func LoadSettings() (*Settings, error) {
	viper.SetConfigName("rouge-config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.rouge")
	viper.AddConfigPath("/etc/rouge")

	viper.SetDefault("alignment", gpt.DefaultAlignment)
	viper.SetDefault("gpt_reserve", gpt.DefaultReserve)
	tc := tools.DefaultToolchain()
	viper.SetDefault("tools.mkfs_ext4", tc.MkfsExt4)
	viper.SetDefault("tools.mkfs_vfat", tc.MkfsVfat)
	viper.SetDefault("tools.mmd", tc.Mmd)
	viper.SetDefault("tools.mcopy", tc.Mcopy)
	viper.SetDefault("tools.simg2img", tc.Simg2Img)
	viper.SetDefault("tools.resize2fs", tc.Resize2F)

	viper.SetEnvPrefix("ROUGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading settings file: %w", err)
		}
		// No settings file is fine, defaults apply.
	}

	var settings Settings
	if err := viper.Unmarshal(&settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling settings: %w", err)
	}
	return &settings, nil
}
