/*
Package config loads the deployment-specific settings for flbench commands.

Settings come from three layers, later layers winning: built-in defaults
for a single-node dev cluster, an optional YAML file (--config), and
FLBENCH_* environment variables (a .env file in the working directory is
loaded first via godotenv, keeping per-host secrets such as API tokens out
of committed files).

Experiment parameters (security level, network profile, seeds) are
deliberately NOT configurable here: they form the run identity and are
passed as explicit command flags so every invocation is self-describing.
*/
package config
