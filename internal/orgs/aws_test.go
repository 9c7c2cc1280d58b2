package orgs

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/organizations"
	"github.com/aws/aws-sdk-go-v2/service/organizations/types"
	"github.com/stretchr/testify/require"
)

// fakeOrganizationsAPI is a scripted OrganizationsAPI for testing the mapping layer.
type fakeOrganizationsAPI struct {
	createOut   *organizations.CreateAccountOutput
	createErr   error
	describeOut *organizations.DescribeCreateAccountStatusOutput
	describeErr error

	lastCreateInput   *organizations.CreateAccountInput
	lastDescribeInput *organizations.DescribeCreateAccountStatusInput
}

func (f *fakeOrganizationsAPI) CreateAccount(ctx context.Context, params *organizations.CreateAccountInput, optFns ...func(*organizations.Options)) (*organizations.CreateAccountOutput, error) {
	f.lastCreateInput = params
	return f.createOut, f.createErr
}

func (f *fakeOrganizationsAPI) DescribeCreateAccountStatus(ctx context.Context, params *organizations.DescribeCreateAccountStatusInput, optFns ...func(*organizations.Options)) (*organizations.DescribeCreateAccountStatusOutput, error) {
	f.lastDescribeInput = params
	return f.describeOut, f.describeErr
}

func TestAWSClient_CreateAccount(t *testing.T) {
	t.Run("returns tracking id from sdk", func(t *testing.T) {
		api := &fakeOrganizationsAPI{
			createOut: &organizations.CreateAccountOutput{
				CreateAccountStatus: &types.CreateAccountStatus{
					Id:    aws.String("car-000111222"),
					State: types.CreateAccountStateInProgress,
				},
			},
		}
		client := NewAWSClientWithAPI(api)

		trackingID, err := client.CreateAccount(context.Background(), "sandbox", "owner@example.com")
		require.NoError(t, err)
		require.Equal(t, "car-000111222", trackingID)
		require.Equal(t, "sandbox", aws.ToString(api.lastCreateInput.AccountName))
		require.Equal(t, "owner@example.com", aws.ToString(api.lastCreateInput.Email))
	})

	t.Run("validates input before calling sdk", func(t *testing.T) {
		api := &fakeOrganizationsAPI{}
		client := NewAWSClientWithAPI(api)

		_, err := client.CreateAccount(context.Background(), "sandbox", "bogus")
		require.ErrorIs(t, err, ErrInvalidEmail)
		require.Nil(t, api.lastCreateInput)
	})

	t.Run("wraps sdk error", func(t *testing.T) {
		api := &fakeOrganizationsAPI{createErr: errors.New("throttled")}
		client := NewAWSClientWithAPI(api)

		_, err := client.CreateAccount(context.Background(), "sandbox", "owner@example.com")
		require.ErrorContains(t, err, "throttled")
	})
}

func TestAWSClient_DescribeCreateAccountStatus(t *testing.T) {
	tests := []struct {
		name   string
		status *types.CreateAccountStatus
		want   CreateStatus
	}{
		{
			name:   "in progress",
			status: &types.CreateAccountStatus{State: types.CreateAccountStateInProgress},
			want:   CreateStatus{State: CreateStateInProgress},
		},
		{
			name: "succeeded carries account id",
			status: &types.CreateAccountStatus{
				State:     types.CreateAccountStateSucceeded,
				AccountId: aws.String("123456789012"),
			},
			want: CreateStatus{State: CreateStateSucceeded, AccountID: "123456789012"},
		},
		{
			name: "failed carries reason",
			status: &types.CreateAccountStatus{
				State:         types.CreateAccountStateFailed,
				FailureReason: types.CreateAccountFailureReasonAccountLimitExceeded,
			},
			want: CreateStatus{State: CreateStateFailed, FailureReason: "ACCOUNT_LIMIT_EXCEEDED"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeOrganizationsAPI{
				describeOut: &organizations.DescribeCreateAccountStatusOutput{
					CreateAccountStatus: tt.status,
				},
			}
			client := NewAWSClientWithAPI(api)

			status, err := client.DescribeCreateAccountStatus(context.Background(), "car-1")
			require.NoError(t, err)
			require.Equal(t, tt.want, *status)
			require.Equal(t, "car-1", aws.ToString(api.lastDescribeInput.CreateAccountRequestId))
		})
	}

	t.Run("missing status in response", func(t *testing.T) {
		api := &fakeOrganizationsAPI{
			describeOut: &organizations.DescribeCreateAccountStatusOutput{},
		}
		client := NewAWSClientWithAPI(api)

		_, err := client.DescribeCreateAccountStatus(context.Background(), "car-1")
		require.ErrorIs(t, err, ErrUnknownTrackingID)
	})
}
