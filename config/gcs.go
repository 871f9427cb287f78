package config

type GCSConfig struct {
	BucketName      string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

func applyGCSEnv(c *GCSConfig) {
	setString(&c.BucketName, "GCS_BUCKET_NAME")
	setString(&c.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
}
