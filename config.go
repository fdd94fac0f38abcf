package politecrawl

import (
	"fmt"

	"github.com/spf13/viper"
)

// configService wraps viper for .env based configuration.
type configService struct {
	v *viper.Viper
}

// newConfig creates a new instance of the configuration service.
func newConfig() *configService {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("Error reading Config file: %v\n", err)
	}

	return &configService{v: v}
}

// EnvString retrieves a string configuration value from environment variables.
func (c *configService) EnvString(envName string, defaultValue ...string) string {
	value := c.v.Get(envName)
	if value != nil {
		return fmt.Sprint(value)
	}
	if len(defaultValue) > 0 {
		return defaultValue[0]
	}
	return ""
}

// GetString retrieves a string type configuration value.
func (c *configService) GetString(path string) string {
	return c.v.GetString(path)
}

// GetInt retrieves an integer type configuration value.
func (c *configService) GetInt(path string) int {
	return c.v.GetInt(path)
}

// GetBool retrieves a boolean type configuration value.
func (c *configService) GetBool(path string) bool {
	return c.v.GetBool(path)
}
