package config

type MinioConfig struct {
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	BucketName string `yaml:"bucket"`
}

func applyMinioEnv(c *MinioConfig) {
	setString(&c.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Region, "MINIO_REGION")
	setString(&c.BucketName, "MINIO_BUCKET_NAME")
	setBool(&c.UseSSL, "MINIO_USE_SSL")
}
