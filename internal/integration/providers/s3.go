package providers

import (
	"context"
	stderrors "errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithy "github.com/aws/smithy-go"

	"github.com/VighneshDev1411/ai-automation-assistant-sub000/internal/integration"
	"github.com/VighneshDev1411/ai-automation-assistant-sub000/pkg/errors"
)

// S3 stores and retrieves objects in S3-compatible object storage. The
// access key pair arrives through the connect flow; region and a custom
// endpoint (MinIO and friends) come from the catalog with per-credential
// overrides.
type S3 struct {
	*integration.BaseIntegration

	region   string
	endpoint string

	mu       sync.Mutex
	client   *s3.Client
	clientID string
}

// NewS3 builds the object storage adapter.
func NewS3(cfg integration.ProviderConfig) (integration.Integration, error) {
	a := &S3{
		region:   withDefault(cfg.Extra["region"], "us-east-1"),
		endpoint: cfg.Extra["endpoint"],
	}
	a.BaseIntegration = integration.NewBaseIntegration(integration.Descriptor{
		ID:          "s3",
		DisplayName: "Object Storage",
		Description: "Store and retrieve objects in Amazon S3 or S3-compatible storage.",
		AuthType:    integration.AuthAPIKey,
		RateLimit:   integration.RateLimit{Requests: 120, Per: "minute"},
	})
	a.registerActions()
	return a, nil
}

func (a *S3) registerActions() {
	a.RegisterAction(integration.ActionDefinition{
		ID:          "put_object",
		Name:        "Put Object",
		Description: "Write an object to a bucket.",
		Inputs: []integration.Field{
			{Name: "bucket", Type: integration.FieldString, Required: true},
			{Name: "key", Type: integration.FieldString, Required: true},
			{Name: "content", Type: integration.FieldString, Required: true},
			{Name: "content_type", Type: integration.FieldString},
		},
		Outputs: []integration.Field{
			{Name: "etag", Type: integration.FieldString},
		},
	}, a.putObject)

	a.RegisterAction(integration.ActionDefinition{
		ID:          "get_object",
		Name:        "Get Object",
		Description: "Read an object's content.",
		Inputs: []integration.Field{
			{Name: "bucket", Type: integration.FieldString, Required: true},
			{Name: "key", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "content", Type: integration.FieldString},
			{Name: "content_type", Type: integration.FieldString},
			{Name: "size", Type: integration.FieldNumber},
		},
	}, a.getObject)

	a.RegisterAction(integration.ActionDefinition{
		ID:          "list_objects",
		Name:        "List Objects",
		Description: "List objects under a prefix.",
		Inputs: []integration.Field{
			{Name: "bucket", Type: integration.FieldString, Required: true},
			{Name: "prefix", Type: integration.FieldString},
			{Name: "max_keys", Type: integration.FieldNumber},
		},
		Outputs: []integration.Field{
			{Name: "objects", Type: integration.FieldArray},
			{Name: "count", Type: integration.FieldNumber},
		},
	}, a.listObjects)

	a.RegisterAction(integration.ActionDefinition{
		ID:          "delete_object",
		Name:        "Delete Object",
		Description: "Delete an object from a bucket.",
		Inputs: []integration.Field{
			{Name: "bucket", Type: integration.FieldString, Required: true},
			{Name: "key", Type: integration.FieldString, Required: true},
		},
		Outputs: []integration.Field{
			{Name: "deleted", Type: integration.FieldBoolean},
		},
	}, a.deleteObject)
}

// Authenticate stores an access key pair and confirms it can list buckets.
func (a *S3) Authenticate(ctx context.Context, params map[string]interface{}) (*integration.Credential, error) {
	keyID := stringInput(params, "access_key_id")
	secret := stringInput(params, "secret_access_key")
	if keyID == "" || secret == "" {
		return nil, errors.Validation("access_key_id and secret_access_key are required")
	}

	cred := &integration.Credential{
		Username:    keyID,
		AccessToken: secret,
	}
	extra := map[string]string{}
	if region := stringInput(params, "region"); region != "" {
		extra["region"] = region
	}
	if endpoint := stringInput(params, "endpoint"); endpoint != "" {
		extra["endpoint"] = endpoint
	}
	if len(extra) > 0 {
		cred.Extra = extra
	}
	a.SetCredentials(cred)

	ok, err := a.ValidateCredentials(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, integrationRejectedToken("s3")
	}
	return cred, nil
}

// ValidateCredentials confirms the key pair by listing buckets.
func (a *S3) ValidateCredentials(ctx context.Context) (bool, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return false, err
	}
	if _, err := client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		if s3AuthError(err) {
			return false, nil
		}
		return false, wrapS3Error(err, "failed to list buckets")
	}
	return true, nil
}

func (a *S3) putObject(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(stringInput(inputs, "bucket")),
		Key:    aws.String(stringInput(inputs, "key")),
		Body:   strings.NewReader(stringInput(inputs, "content")),
	}
	if ct := stringInput(inputs, "content_type"); ct != "" {
		input.ContentType = aws.String(ct)
	}

	out, err := client.PutObject(ctx, input)
	if err != nil {
		return nil, wrapS3Error(err, "failed to put object")
	}
	return map[string]interface{}{
		"etag": aws.ToString(out.ETag),
	}, nil
}

func (a *S3) getObject(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(stringInput(inputs, "bucket")),
		Key:    aws.String(stringInput(inputs, "key")),
	})
	if err != nil {
		return nil, wrapS3Error(err, "failed to get object")
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeUpstream, "failed to read object body")
	}

	return map[string]interface{}{
		"content":      string(data),
		"content_type": aws.ToString(out.ContentType),
		"size":         len(data),
	}, nil
}

func (a *S3) listObjects(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(stringInput(inputs, "bucket")),
	}
	if prefix := stringInput(inputs, "prefix"); prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if n, ok := integration.NumberInput(inputs["max_keys"]); ok && n > 0 {
		input.MaxKeys = aws.Int32(int32(n))
	}

	out, err := client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, wrapS3Error(err, "failed to list objects")
	}

	objects := make([]interface{}, 0, len(out.Contents))
	for _, obj := range out.Contents {
		entry := map[string]interface{}{
			"key":  aws.ToString(obj.Key),
			"size": aws.ToInt64(obj.Size),
		}
		if obj.LastModified != nil {
			entry["last_modified"] = obj.LastModified.UTC().Format(time.RFC3339)
		}
		objects = append(objects, entry)
	}

	return map[string]interface{}{
		"objects": objects,
		"count":   len(objects),
	}, nil
}

func (a *S3) deleteObject(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	client, err := a.s3Client(ctx)
	if err != nil {
		return nil, err
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(stringInput(inputs, "bucket")),
		Key:    aws.String(stringInput(inputs, "key")),
	})
	if err != nil {
		return nil, wrapS3Error(err, "failed to delete object")
	}
	return map[string]interface{}{"deleted": true}, nil
}

// s3Client returns a client built for the held credential, rebuilding when
// the key pair or its region override changes.
func (a *S3) s3Client(ctx context.Context) (*s3.Client, error) {
	cred := a.Credentials()
	if cred == nil || cred.AccessToken == "" {
		return nil, errors.Unauthorized("integration s3 holds no credential")
	}

	region := withDefault(cred.Extra["region"], a.region)
	endpoint := withDefault(cred.Extra["endpoint"], a.endpoint)
	cacheID := cred.Username + "|" + region + "|" + endpoint

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil && a.clientID == cacheID {
		return a.client, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cred.Username, cred.AccessToken, ""),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternalError, "failed to load AWS config")
	}

	s3Opts := []func(*s3.Options){}
	if endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	a.client = s3.NewFromConfig(awsCfg, s3Opts...)
	a.clientID = cacheID
	return a.client, nil
}

// s3AuthError matches the error codes S3 returns for bad or revoked keys.
func s3AuthError(err error) bool {
	var apiErr smithy.APIError
	if !stderrors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "AccessDenied", "ExpiredToken":
		return true
	}
	return false
}

func wrapS3Error(err error, message string) error {
	return errors.Wrap(err, errors.CodeUpstream, message)
}
