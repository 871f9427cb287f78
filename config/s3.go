package config

type S3Config struct {
	BucketName string `yaml:"bucket"`
	Region     string `yaml:"region"`
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
}

func applyS3Env(c *S3Config) {
	setString(&c.BucketName, "AWS_S3_BUCKET_NAME")
	setString(&c.Region, "AWS_REGION")
	setString(&c.Endpoint, "AWS_ENDPOINT")
	setString(&c.AccessKey, "AWS_ACCESS_KEY")
	setString(&c.SecretKey, "AWS_SECRET_KEY")
}
