package filesystem

type FilesystemConfig struct {
	StorageDirectory string `mapstructure:"storage_directory"`
}
