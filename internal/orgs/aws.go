package orgs

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/rs/zerolog/log"
)

// OrganizationsAPI is the subset of the AWS Organizations client this
// implementation uses, narrowed so tests can substitute a fake.
type OrganizationsAPI interface {
	CreateAccount(ctx context.Context, params *organizations.CreateAccountInput, optFns ...func(*organizations.Options)) (*organizations.CreateAccountOutput, error)
	DescribeCreateAccountStatus(ctx context.Context, params *organizations.DescribeCreateAccountStatusInput, optFns ...func(*organizations.Options)) (*organizations.DescribeCreateAccountStatusOutput, error)
}

// AWSClient implements Client against AWS Organizations.
type AWSClient struct {
	api OrganizationsAPI
}

// NewAWSClient creates an organization client backed by AWS Organizations.
func NewAWSClient(cfg aws.Config) *AWSClient {
	return &AWSClient{
		api: organizations.NewFromConfig(cfg),
	}
}

// NewAWSClientWithAPI creates an organization client with an explicit API,
// used by tests.
func NewAWSClientWithAPI(api OrganizationsAPI) *AWSClient {
	return &AWSClient{
		api: api,
	}
}

// CreateAccount starts an asynchronous CreateAccount operation and returns
// the create-account-request id used to poll for completion.
func (c *AWSClient) CreateAccount(ctx context.Context, accountName, ownerEmail string) (string, error) {
	if err := ValidateCreateInput(accountName, ownerEmail); err != nil {
		return "", err
	}

	out, err := c.api.CreateAccount(ctx, &organizations.CreateAccountInput{
		AccountName: aws.String(accountName),
		Email:       aws.String(ownerEmail),
	})
	if err != nil {
		return "", fmt.Errorf("failed to create account: %w", err)
	}
	if out.CreateAccountStatus == nil || out.CreateAccountStatus.Id == nil {
		return "", fmt.Errorf("create account returned no tracking id")
	}

	trackingID := aws.ToString(out.CreateAccountStatus.Id)

	log.Info().
		Str("account_name", accountName).
		Str("tracking_id", trackingID).
		Msg("Account creation started")

	return trackingID, nil
}

// DescribeCreateAccountStatus polls the operation identified by trackingID.
func (c *AWSClient) DescribeCreateAccountStatus(ctx context.Context, trackingID string) (*CreateStatus, error) {
	out, err := c.api.DescribeCreateAccountStatus(ctx, &organizations.DescribeCreateAccountStatusInput{
		CreateAccountRequestId: aws.String(trackingID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe account creation %s: %w", trackingID, err)
	}
	if out.CreateAccountStatus == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTrackingID, trackingID)
	}

	return mapCreateAccountStatus(out.CreateAccountStatus), nil
}

// mapCreateAccountStatus converts the SDK status into the port's CreateStatus.
func mapCreateAccountStatus(status *types.CreateAccountStatus) *CreateStatus {
	result := &CreateStatus{}

	switch status.State {
	case types.CreateAccountStateSucceeded:
		result.State = CreateStateSucceeded
		result.AccountID = aws.ToString(status.AccountId)
	case types.CreateAccountStateFailed:
		result.State = CreateStateFailed
		result.FailureReason = string(status.FailureReason)
	default:
		result.State = CreateStateInProgress
	}

	return result
}
