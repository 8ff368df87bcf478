// defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "chronostore")
	viper.SetDefault("main.schema", "schema.yaml")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/chronostore.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)
	viper.SetDefault("main.log.rotationday", "Sunday")

	viper.SetDefault("store.sqlite.enabled", true)
	viper.SetDefault("store.sqlite.path", "chronostore.db")

	viper.SetDefault("store.mysql.enabled", false)
	viper.SetDefault("store.mysql.username", "chronostore")
	viper.SetDefault("store.mysql.password", "")
	viper.SetDefault("store.mysql.database", "chronostore")
	viper.SetDefault("store.mysql.host", "localhost")
	viper.SetDefault("store.mysql.port", "3306")

	viper.SetDefault("store.badger.enabled", false)
	viper.SetDefault("store.badger.path", "chronostore.badger")
	viper.SetDefault("store.badger.inmemory", false)
}
