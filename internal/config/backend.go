package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// ServiceCLI holds the settings shared by every backend service binary.
type ServiceCLI struct {
	Host      string `kong:"help='Listen host.',env='HOST',default='0.0.0.0'"`
	Port      int    `kong:"short='p',help='Listen port.',env='PORT',default='8080'"`
	LogLevel  string `kong:"help='Log level: debug|info|warn|error.',env='LOG_LEVEL',default='info',enum='debug,info,warn,error'"`
	LogFormat string `kong:"help='Log format: json|text.',env='LOG_FORMAT',default='json',enum='json,text'"`
}

// Addr returns the listen address in host:port form.
func (c *ServiceCLI) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// PostgresCLI configures a service backed by PostgreSQL.
type PostgresCLI struct {
	ServiceCLI `embed:""`

	DBHost     string `kong:"name='db-host',help='PostgreSQL host.',env='DB_HOST',default='localhost'"`
	DBPort     int    `kong:"name='db-port',help='PostgreSQL port.',env='DB_PORT',default='5432'"`
	DBName     string `kong:"name='db-name',help='PostgreSQL database.',env='DB_NAME',default='appdb'"`
	DBUser     string `kong:"name='db-user',help='PostgreSQL user.',env='DB_USER',default='admin'"`
	DBPassword string `kong:"name='db-password',help='PostgreSQL password.',env='DB_PASSWORD',default='password'"`
	DBSSLMode  string `kong:"name='db-sslmode',help='PostgreSQL sslmode.',env='DB_SSLMODE',default='disable'"`
}

// DSN returns a pgx connection URL.
func (c *PostgresCLI) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.DBUser, c.DBPassword),
		Host:   net.JoinHostPort(c.DBHost, strconv.Itoa(c.DBPort)),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.DBSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// MongoCLI configures a service backed by MongoDB.
type MongoCLI struct {
	ServiceCLI `embed:""`

	MongoHost     string `kong:"name='mongodb-host',help='MongoDB host.',env='MONGODB_HOST',default='localhost'"`
	MongoPort     int    `kong:"name='mongodb-port',help='MongoDB port.',env='MONGODB_PORT',default='27017'"`
	MongoDB       string `kong:"name='mongodb-db',help='MongoDB database.',env='MONGODB_DB',default='products'"`
	MongoUser     string `kong:"name='mongodb-user',help='MongoDB user.',env='MONGODB_USER',default='admin'"`
	MongoPassword string `kong:"name='mongodb-password',help='MongoDB password.',env='MONGODB_PASSWORD',default='password'"`
}

// URI returns a MongoDB connection string authenticating against the admin database.
func (c *MongoCLI) URI() string {
	u := url.URL{
		Scheme:   "mongodb",
		Host:     net.JoinHostPort(c.MongoHost, strconv.Itoa(c.MongoPort)),
		Path:     "/" + c.MongoDB,
		RawQuery: "authSource=admin",
	}
	if c.MongoUser != "" {
		u.User = url.UserPassword(c.MongoUser, c.MongoPassword)
	}
	return u.String()
}

// Redacted returns the URI with the password masked, for logging.
func (c *MongoCLI) Redacted() string {
	u, err := url.Parse(c.URI())
	if err != nil {
		return fmt.Sprintf("mongodb://%s:%d/%s", c.MongoHost, c.MongoPort, c.MongoDB)
	}
	return u.Redacted()
}
