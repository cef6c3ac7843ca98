package config

// ProviderCredentials is what deployment supplies for one identity provider.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Tenant only applies to Azure AD.
	Tenant string
}

type ProviderConfig interface {
	// GetProviderCredentials returns the credentials for a provider name, false when unconfigured.
	GetProviderCredentials(name string) (ProviderCredentials, bool)
}

type Providers struct {
	s Settings
}

var _ ProviderConfig = Providers{}

func (p Providers) GetProviderCredentials(name string) (ProviderCredentials, bool) {
	var creds ProviderCredentials
	switch name {
	case "linkedIn":
		creds = ProviderCredentials{ClientID: p.s.LinkedInClientID, ClientSecret: p.s.LinkedInClientSecret}
	case "azureADv1":
		creds = ProviderCredentials{ClientID: p.s.AzureADAppID, ClientSecret: p.s.AzureADAppPassword, Tenant: p.s.AzureADTenant}
	case "google":
		creds = ProviderCredentials{ClientID: p.s.GoogleClientID, ClientSecret: p.s.GoogleClientSecret}
	default:
		return ProviderCredentials{}, false
	}
	if creds.ClientID == "" {
		return ProviderCredentials{}, false
	}
	creds.RedirectURL = EnvVars{s: p.s}.GetBaseURL() + "/auth/" + name + "/callback"
	return creds, true
}
