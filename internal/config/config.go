package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port      string `mapstructure:"PORT"`
	DBUrl     string `mapstructure:"DB_URL"`
	RedisUrl  string `mapstructure:"REDIS_URL"`
	SceneFile string `mapstructure:"SCENE_FILE"`

	Propagation `mapstructure:",squash"`
}

// Propagation holds the options of a noise map run
type Propagation struct {
	DiffractionOrder        int     `mapstructure:"DIFFRACTION_ORDER"`
	ReflectionOrder         int     `mapstructure:"REFLECTION_ORDER"`
	VerticalDiffraction     bool    `mapstructure:"VERTICAL_DIFFRACTION"`
	HeightField             string  `mapstructure:"HEIGHT_FIELD"`
	DEMTable                string  `mapstructure:"DEM_TABLE"`
	DEMResolution           float64 `mapstructure:"DEM_RESOLUTION"`
	MaxSourceDistance       float64 `mapstructure:"MAX_SOURCE_DISTANCE"`
	MaxReflectionDistance   float64 `mapstructure:"MAX_REFLECTION_DISTANCE"`
	GroundFactor            float64 `mapstructure:"GROUND_FACTOR"`
	Temperature             float64 `mapstructure:"TEMPERATURE"`
	Humidity                float64 `mapstructure:"HUMIDITY"`
	CellSize                float64 `mapstructure:"CELL_SIZE"`
	LineSourceStep          float64 `mapstructure:"LINE_SOURCE_STEP"`
	Workers                 int     `mapstructure:"WORKERS"`
	CellWorkers             int     `mapstructure:"CELL_WORKERS"`
	SourceHeightsRelative   bool    `mapstructure:"SOURCE_HEIGHTS_RELATIVE"`
	ReceiverHeightsRelative bool    `mapstructure:"RECEIVER_HEIGHTS_RELATIVE"`
	WallAbsorption          float64 `mapstructure:"WALL_ABSORPTION"`
	MaterialsFile           string  `mapstructure:"MATERIALS_FILE"`
}

func LoadConfig() (c Config, err error) {
	// Get environment type from ENV variable or use development as default
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName(fmt.Sprintf(".env.%s", env))
	v.SetConfigType("env")
	v.AddConfigPath(".")

	// Environment variables take precedence over config file
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Continue even if file is not found
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
	}

	err = v.Unmarshal(&c)
	return
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", ":8080")
	v.SetDefault("DB_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("SCENE_FILE", "")

	d := DefaultPropagation()
	v.SetDefault("DIFFRACTION_ORDER", d.DiffractionOrder)
	v.SetDefault("REFLECTION_ORDER", d.ReflectionOrder)
	v.SetDefault("VERTICAL_DIFFRACTION", d.VerticalDiffraction)
	v.SetDefault("HEIGHT_FIELD", d.HeightField)
	v.SetDefault("DEM_TABLE", d.DEMTable)
	v.SetDefault("DEM_RESOLUTION", d.DEMResolution)
	v.SetDefault("MAX_SOURCE_DISTANCE", d.MaxSourceDistance)
	v.SetDefault("MAX_REFLECTION_DISTANCE", d.MaxReflectionDistance)
	v.SetDefault("GROUND_FACTOR", d.GroundFactor)
	v.SetDefault("TEMPERATURE", d.Temperature)
	v.SetDefault("HUMIDITY", d.Humidity)
	v.SetDefault("CELL_SIZE", d.CellSize)
	v.SetDefault("LINE_SOURCE_STEP", d.LineSourceStep)
	v.SetDefault("WORKERS", d.Workers)
	v.SetDefault("CELL_WORKERS", d.CellWorkers)
	v.SetDefault("SOURCE_HEIGHTS_RELATIVE", d.SourceHeightsRelative)
	v.SetDefault("RECEIVER_HEIGHTS_RELATIVE", d.ReceiverHeightsRelative)
	v.SetDefault("WALL_ABSORPTION", d.WallAbsorption)
	v.SetDefault("MATERIALS_FILE", d.MaterialsFile)
}
